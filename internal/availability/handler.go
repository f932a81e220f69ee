package availability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const defaultNextLimit = 5

// Handler serves slot queries. Slots that already started are never
// offered.
type Handler struct {
	service  *Service
	scopes   scheduling.Scopes
	scanDays int
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates the availability HTTP handler. scanDays is the default
// horizon for /next.
func NewHandler(service *Service, scopes scheduling.Scopes, scanDays int, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if scanDays <= 0 {
		scanDays = 30
	}
	return &Handler{service: service, scopes: scopes, scanDays: scanDays, logger: logger, now: time.Now}
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Routes mounts GET / and GET /next.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Day)
	r.Get("/next", h.Next)
	return r
}

// Day returns free slots for one date.
// GET /v1/availability?location_id=&provider_id=&service_id=&date=&duration=
func (h *Handler) Day(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	q, ok := h.slotQuery(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("date")
	if raw == "" {
		httperr.BadRequest(w, "date is required")
		return
	}
	date, err := timewindow.ParseDate(raw)
	if err != nil {
		httperr.BadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	q.Date = date
	day, err := h.service.DaySlots(r.Context(), store, q)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	if day.Slots == nil {
		day.Slots = []Slot{}
	}
	httperr.JSON(w, http.StatusOK, day)
}

// Next returns the first days with free slots.
// GET /v1/availability/next?location_id=&from=&limit=&days=
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	q, ok := h.slotQuery(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	search := SearchQuery{SlotQuery: q, Limit: defaultNextLimit, DaysToScan: h.scanDays}
	if raw := params.Get("from"); raw != "" {
		date, err := timewindow.ParseDate(raw)
		if err != nil {
			httperr.BadRequest(w, "from must be YYYY-MM-DD")
			return
		}
		search.Date = date
	}
	var err error
	if raw := params.Get("limit"); raw != "" {
		if search.Limit, err = strconv.Atoi(raw); err != nil {
			httperr.BadRequest(w, "limit must be an integer")
			return
		}
	}
	if raw := params.Get("days"); raw != "" {
		if search.DaysToScan, err = strconv.Atoi(raw); err != nil {
			httperr.BadRequest(w, "days must be an integer")
			return
		}
	}
	days, err := h.service.FindNextAvailableSlots(r.Context(), store, search)
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *Handler) slotQuery(w http.ResponseWriter, r *http.Request) (SlotQuery, bool) {
	params := r.URL.Query()
	q := SlotQuery{NotBefore: h.now().UTC()}
	var err error
	if q.LocationID, err = uuid.Parse(params.Get("location_id")); err != nil {
		httperr.BadRequest(w, "location_id must be a uuid")
		return q, false
	}
	if raw := params.Get("provider_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httperr.BadRequest(w, "provider_id must be a uuid")
			return q, false
		}
		q.ProviderID = &id
	}
	if raw := params.Get("service_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httperr.BadRequest(w, "service_id must be a uuid")
			return q, false
		}
		q.ServiceID = &id
	}
	if raw := params.Get("duration"); raw != "" {
		if q.DurationMinutes, err = strconv.Atoi(raw); err != nil {
			httperr.BadRequest(w, "duration must be an integer number of minutes")
			return q, false
		}
		if q.DurationMinutes <= 0 {
			httperr.Error(w, h.logger, scheduling.Invalid(opSlots, "duration must be positive, got %d", q.DurationMinutes))
			return q, false
		}
	}
	return q, true
}

func (h *Handler) tenantStore(w http.ResponseWriter, r *http.Request) (scheduling.TenantStore, bool) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		httperr.BadRequest(w, "tenant is required")
		return nil, false
	}
	return h.scopes.Tenant(tenantID), true
}
