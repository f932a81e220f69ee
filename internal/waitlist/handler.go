package waitlist

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes the waitlist entry lifecycle.
type Handler struct {
	service *Service
	scopes  scheduling.Scopes
	logger  *logging.Logger
}

// NewHandler creates the waitlist HTTP handler.
func NewHandler(service *Service, scopes scheduling.Scopes, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, scopes: scopes, logger: logger}
}

// Routes mounts POST /, GET / and POST /{id}/resolve.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Join)
	r.Get("/", h.List)
	r.Post("/{id}/resolve", h.Resolve)
	return r
}

type joinRequest struct {
	LocationID uuid.UUID                    `json:"location_id"`
	Patient    appointments.PatientIdentity `json:"patient"`
	Priority   int                          `json:"priority"`
}

// Join adds a waitlist entry.
// POST /v1/waitlist
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	var body joinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperr.BadRequest(w, "invalid JSON body")
		return
	}
	entry, err := h.service.Join(r.Context(), store, JoinRequest{
		LocationID: body.LocationID,
		Patient:    body.Patient,
		Priority:   body.Priority,
	})
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusCreated, entry)
}

// List returns active entries.
// GET /v1/waitlist?location_id=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	locationID, err := uuid.Parse(r.URL.Query().Get("location_id"))
	if err != nil {
		httperr.BadRequest(w, "location_id must be a uuid")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			httperr.BadRequest(w, "limit must be a non-negative integer")
			return
		}
	}
	entries, err := h.service.List(r.Context(), store, locationID, limit)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []scheduling.WaitlistEntry{}
	}
	httperr.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

// Resolve deactivates an entry.
// POST /v1/waitlist/{id}/resolve
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.BadRequest(w, "invalid waitlist entry id")
		return
	}
	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperr.BadRequest(w, "invalid JSON body")
		return
	}
	entry, err := h.service.Resolve(r.Context(), store, id, body.Resolution)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusOK, entry)
}

func (h *Handler) tenantStore(w http.ResponseWriter, r *http.Request) (scheduling.TenantStore, bool) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		httperr.BadRequest(w, "tenant is required")
		return nil, false
	}
	return h.scopes.Tenant(tenantID), true
}
