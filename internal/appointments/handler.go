package appointments

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes booking and status transitions over HTTP. The tenant comes
// from request context; trusted callers get confirmed bookings.
type Handler struct {
	service *Service
	scopes  scheduling.Scopes
	logger  *logging.Logger
}

// NewHandler creates the appointments HTTP handler.
func NewHandler(service *Service, scopes scheduling.Scopes, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, scopes: scopes, logger: logger}
}

// Routes mounts POST / and POST /{id}/{action}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/{id}/{action}", h.Transition)
	return r
}

type createRequest struct {
	LocationID      *uuid.UUID      `json:"location_id,omitempty"`
	ProviderID      *uuid.UUID      `json:"provider_id,omitempty"`
	ServiceID       *uuid.UUID      `json:"service_id,omitempty"`
	Patient         PatientIdentity `json:"patient"`
	Start           time.Time       `json:"start"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Channel         string          `json:"channel,omitempty"`
}

type notificationBody struct {
	Outcome string `json:"outcome"`
	Channel string `json:"channel,omitempty"`
}

type createResponse struct {
	Appointment  *scheduling.Appointment `json:"appointment"`
	Notification notificationBody        `json:"notification"`
}

// Create books an appointment.
// POST /v1/appointments and /v1/public/{tenantSlug}/appointments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperr.BadRequest(w, "invalid JSON body")
		return
	}
	trusted := tenancy.IsTrusted(r.Context())
	channel := body.Channel
	if channel == "" {
		channel = "public"
		if trusted {
			channel = "internal"
		}
	}

	res, err := h.service.CreateAppointment(r.Context(), store, CreateRequest{
		LocationID:      body.LocationID,
		ProviderID:      body.ProviderID,
		ServiceID:       body.ServiceID,
		Patient:         body.Patient,
		Start:           body.Start,
		DurationMinutes: body.DurationMinutes,
		Notes:           body.Notes,
		Channel:         channel,
		Trusted:         trusted,
	})
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusCreated, createResponse{
		Appointment: res.Appointment,
		Notification: notificationBody{
			Outcome: string(res.Notification.Outcome),
			Channel: res.Notification.Channel,
		},
	})
}

// Transition applies a status action.
// POST /v1/appointments/{id}/{action}
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	store, ok := h.tenantStore(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.BadRequest(w, "invalid appointment id")
		return
	}
	appt, err := h.service.Transition(r.Context(), store, id, Action(chi.URLParam(r, "action")))
	if err != nil {
		httperr.Error(w, h.logger, err)
		return
	}
	httperr.JSON(w, http.StatusOK, appt)
}

func (h *Handler) tenantStore(w http.ResponseWriter, r *http.Request) (scheduling.TenantStore, bool) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		httperr.Write(w, http.StatusBadRequest, string(scheduling.ValidationError), "tenant is required")
		return nil, false
	}
	return h.scopes.Tenant(tenantID), true
}
