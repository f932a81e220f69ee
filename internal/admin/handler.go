package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Repository is what the handler needs from Store.
type Repository interface {
	ListTenants(ctx context.Context, ids []uuid.UUID) ([]TenantSummary, error)
	TenantStats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*Stats, error)
	PutCredentials(ctx context.Context, tenantID uuid.UUID, creds integrations.Credentials) error
}

// Handler serves the admin API. Mount it behind admin JWT auth.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates the admin HTTP handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Routes mounts the admin endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/tenants", h.ListTenants)
	r.Get("/tenants/{id}/stats", h.Stats)
	r.Put("/tenants/{id}/integrations/{kind}", h.PutIntegration)
	return r
}

// ListTenants returns tenants with their location counts.
// GET /admin/tenants?ids=a,b
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("ids")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				httperr.BadRequest(w, "ids must be comma separated uuids")
				return
			}
			ids = append(ids, id)
		}
	}
	tenants, err := h.repo.ListTenants(r.Context(), ids)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// Stats returns booking and messaging counts for a tenant. The period
// defaults to the last 30 days.
// GET /admin/tenants/{id}/stats?from=&to=
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.BadRequest(w, "invalid tenant id")
		return
	}
	to := h.now().UTC()
	from := to.AddDate(0, 0, -30)
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			httperr.BadRequest(w, "from must be RFC3339")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			httperr.BadRequest(w, "to must be RFC3339")
			return
		}
	}
	if !from.Before(to) {
		httperr.Error(w, h.logger, scheduling.Invalid("admin.stats", "from must be before to"))
		return
	}
	stats, err := h.repo.TenantStats(r.Context(), tenantID, from, to)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusOK, stats)
}

// PutIntegration validates and stores tenant credentials.
// PUT /admin/tenants/{id}/integrations/{kind}
func (h *Handler) PutIntegration(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.BadRequest(w, "invalid tenant id")
		return
	}
	kind, err := integrations.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httperr.BadRequest(w, err.Error())
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		httperr.BadRequest(w, "unreadable body")
		return
	}
	creds, err := integrations.Parse(kind, raw)
	if err != nil {
		if errors.Is(err, integrations.ErrInvalidCredentials) || errors.Is(err, integrations.ErrUnknownKind) {
			httperr.BadRequest(w, err.Error())
			return
		}
		httperr.Error(w, h.logger, err)
		return
	}
	if err := h.repo.PutCredentials(r.Context(), tenantID, creds); err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	h.logger.Info("tenant integration updated", "tenant_id", tenantID, "kind", kind)
	w.WriteHeader(http.StatusNoContent)
}
