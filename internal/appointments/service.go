package appointments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/availability"
	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var appointmentsTracer = otel.Tracer("scheduler.internal.appointments")

const (
	opCreate     = "appointments.create"
	opTransition = "appointments.transition"
	opIdentity   = "appointments.identity"

	defaultCountryCode = "1"
)

// PatientIdentity identifies the booking patient by phone, or by email when
// no phone is given.
type PatientIdentity struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// CreateRequest is a booking attempt. Optional ids are nil when unset; a
// zero DurationMinutes falls back to the service, then the location default.
type CreateRequest struct {
	LocationID      *uuid.UUID
	ProviderID      *uuid.UUID
	ServiceID       *uuid.UUID
	Patient         PatientIdentity
	Start           time.Time
	DurationMinutes int
	Notes           string
	Channel         string
	Trusted         bool
}

// BookingResult carries the created appointment and the advisory outcome of
// the confirmation message.
type BookingResult struct {
	Appointment  *scheduling.Appointment
	Patient      *scheduling.Patient
	Notification notify.Result
}

// Notifier sends a patient message guarded by the message log.
type Notifier interface {
	Notify(ctx context.Context, store scheduling.TenantStore, req notify.Request) notify.Result
}

// Service books appointments and moves them through their statuses.
type Service struct {
	notifier    Notifier
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
	now         func() time.Time
	countryCode string
}

// NewService creates an appointment service. notifier may be nil, in which
// case no confirmation is sent.
func NewService(notifier Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		countryCode: defaultCountryCode,
	}
}

// WithClock injects the source of "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithDefaultCountryCode sets the calling code prepended to national numbers.
func (s *Service) WithDefaultCountryCode(cc string) *Service {
	if cc = strings.TrimPrefix(strings.TrimSpace(cc), "+"); cc != "" {
		s.countryCode = cc
	}
	return s
}

// CreateAppointment validates the request, re-checks the slot atomically in
// the store and inserts the appointment. The confirmation message is best
// effort: its failure is logged and reported in the result, never returned.
func (s *Service) CreateAppointment(ctx context.Context, store scheduling.TenantStore, req CreateRequest) (*BookingResult, error) {
	ctx, span := appointmentsTracer.Start(ctx, opCreate)
	defer span.End()
	span.SetAttributes(attribute.String("scheduler.tenant_id", store.TenantID().String()))

	result, err := s.create(ctx, store, req)
	if err != nil {
		span.RecordError(err)
		switch scheduling.KindOf(err) {
		case scheduling.SlotTaken:
			s.metrics.ObserveBooking("slot_taken")
		case scheduling.ValidationError, scheduling.NotFound:
			s.metrics.ObserveBooking("rejected")
		default:
			s.metrics.ObserveBooking("error")
		}
		return nil, err
	}
	s.metrics.ObserveBooking("created")
	span.SetAttributes(attribute.String("scheduler.appointment_id", result.Appointment.ID.String()))
	return result, nil
}

func (s *Service) create(ctx context.Context, store scheduling.TenantStore, req CreateRequest) (*BookingResult, error) {
	if req.Start.IsZero() {
		return nil, scheduling.Invalid(opCreate, "start is required")
	}
	if req.DurationMinutes < 0 {
		return nil, scheduling.Invalid(opCreate, "duration must be positive, got %d", req.DurationMinutes)
	}
	if !req.Start.After(s.now()) {
		return nil, scheduling.Invalid(opCreate, "start must be in the future")
	}

	var provider *scheduling.Provider
	if req.ProviderID != nil {
		p, err := store.GetProvider(ctx, *req.ProviderID)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	loc, err := s.resolveLocation(ctx, store, req.LocationID, provider)
	if err != nil {
		return nil, err
	}
	duration, err := s.resolveDuration(ctx, store, req, loc)
	if err != nil {
		return nil, err
	}
	identity, err := s.normalizeIdentity(req.Patient)
	if err != nil {
		return nil, err
	}

	requested := timewindow.Interval{Start: req.Start, End: req.Start.Add(time.Duration(duration) * time.Minute)}
	if err := withinHours(requested, loc, provider); err != nil {
		return nil, err
	}

	patient, err := store.ResolvePatient(ctx, identity)
	if err != nil {
		return nil, err
	}

	status := scheduling.StatusPending
	if req.Trusted {
		status = scheduling.StatusConfirmed
	}
	appt := &scheduling.Appointment{
		TenantID:   store.TenantID(),
		LocationID: loc.ID,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		PatientID:  patient.ID,
		Start:      requested.Start,
		End:        requested.End,
		Status:     status,
		Channel:    req.Channel,
		Notes:      strings.TrimSpace(req.Notes),
	}
	check := func(occ scheduling.Occupancy) error {
		if timewindow.OverlapsAny(requested, occ.Intervals()) {
			return scheduling.Taken(opCreate, nil)
		}
		return nil
	}
	if err := store.InsertAppointment(ctx, appt, check); err != nil {
		return nil, err
	}
	s.logger.Info("appointment created",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
		"location_id", appt.LocationID,
		"provider_id", appt.ProviderID,
		"patient_id", appt.PatientID,
		"status", appt.Status,
	)

	result := &BookingResult{Appointment: appt, Patient: patient}
	result.Notification = s.confirm(ctx, store, appt, patient, loc)
	return result, nil
}

func (s *Service) confirm(ctx context.Context, store scheduling.TenantStore, appt *scheduling.Appointment, patient *scheduling.Patient, loc *scheduling.Location) notify.Result {
	if s.notifier == nil {
		return notify.Result{Outcome: notify.OutcomeSkippedNoContact}
	}
	res := s.notifier.Notify(ctx, store, notify.Request{
		Patient:       *patient,
		AppointmentID: appt.ID,
		Type:          scheduling.MessageAppointmentCreated,
		Variables:     notify.AppointmentVariables(patient.Name, appt.Start, loc),
	})
	if res.Outcome == notify.OutcomeFailed {
		s.logger.Warn("appointment confirmation not delivered",
			"tenant_id", appt.TenantID,
			"appointment_id", appt.ID,
			"patient_id", patient.ID,
			"error", res.Err,
		)
	}
	return res
}

func (s *Service) resolveLocation(ctx context.Context, store scheduling.TenantStore, explicit *uuid.UUID, provider *scheduling.Provider) (*scheduling.Location, error) {
	if explicit != nil {
		return store.GetLocation(ctx, *explicit)
	}
	if provider != nil && provider.DefaultLocationID != nil {
		return store.GetLocation(ctx, *provider.DefaultLocationID)
	}
	locs, err := store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	switch len(locs) {
	case 0:
		return nil, scheduling.Invalid(opCreate, "tenant has no locations")
	case 1:
		return &locs[0], nil
	default:
		return nil, scheduling.Invalid(opCreate, "location_id is required when the tenant has %d locations", len(locs))
	}
}

func (s *Service) resolveDuration(ctx context.Context, store scheduling.TenantStore, req CreateRequest, loc *scheduling.Location) (int, error) {
	duration := req.DurationMinutes
	if duration == 0 && req.ServiceID != nil {
		svc, err := store.GetService(ctx, *req.ServiceID)
		if err != nil {
			return 0, err
		}
		duration = svc.DurationMinutes
	}
	if duration == 0 {
		duration = loc.SlotMinutes
	}
	if duration <= 0 {
		return 0, scheduling.Invalid(opCreate, "duration must be positive, got %d", duration)
	}
	return duration, nil
}

func (s *Service) normalizeIdentity(id PatientIdentity) (scheduling.Patient, error) {
	return NormalizeIdentity(id, s.countryCode)
}

// NormalizeIdentity validates a patient identity and normalizes the phone to
// E.164 and the email to lower case. A phone, when present, is the identity.
func NormalizeIdentity(id PatientIdentity, countryCode string) (scheduling.Patient, error) {
	p := scheduling.Patient{
		Name:  strings.TrimSpace(id.Name),
		Email: strings.ToLower(strings.TrimSpace(id.Email)),
	}
	if strings.TrimSpace(id.Phone) != "" {
		phone, err := messaging.NormalizeE164(id.Phone, countryCode)
		if err != nil {
			return scheduling.Patient{}, scheduling.Invalid(opIdentity, "patient phone: %v", err)
		}
		p.Phone = phone
		return p, nil
	}
	if p.Email == "" {
		return scheduling.Patient{}, scheduling.Invalid(opIdentity, "patient phone or email is required")
	}
	if at := strings.Index(p.Email, "@"); at <= 0 || at == len(p.Email)-1 {
		return scheduling.Patient{}, scheduling.Invalid(opIdentity, "patient email %q is malformed", p.Email)
	}
	return p, nil
}

// withinHours rejects requests that are not fully inside one open interval
// of the day the appointment starts on.
func withinHours(requested timewindow.Interval, loc *scheduling.Location, provider *scheduling.Provider) error {
	zone, err := availability.LocationZone(loc)
	if err != nil {
		return err
	}
	date := timewindow.DateOf(requested.Start, zone)
	open, err := availability.ResolveOpenIntervals(date, loc, provider)
	if err != nil {
		return err
	}
	if !timewindow.ContainedByAny(requested, open) {
		return scheduling.Invalid(opCreate, "requested time %s is outside business hours", requested.Start.In(zone).Format(time.RFC3339))
	}
	return nil
}

// Action is a status transition requested by a caller.
type Action string

const (
	ActionConfirm           Action = "confirm"
	ActionCancel            Action = "cancel"
	ActionComplete          Action = "complete"
	ActionNoShow            Action = "no_show"
	ActionRequestReschedule Action = "request_reschedule"
)

type transition struct {
	from []scheduling.AppointmentStatus
	to   scheduling.AppointmentStatus
}

var transitions = map[Action]transition{
	ActionConfirm: {
		from: []scheduling.AppointmentStatus{scheduling.StatusPending},
		to:   scheduling.StatusConfirmed,
	},
	ActionCancel: {
		from: []scheduling.AppointmentStatus{scheduling.StatusPending, scheduling.StatusConfirmed, scheduling.StatusRescheduleRequested},
		to:   scheduling.StatusCanceled,
	},
	ActionComplete: {
		from: []scheduling.AppointmentStatus{scheduling.StatusConfirmed},
		to:   scheduling.StatusCompleted,
	},
	ActionNoShow: {
		from: []scheduling.AppointmentStatus{scheduling.StatusConfirmed},
		to:   scheduling.StatusNoShow,
	},
	ActionRequestReschedule: {
		from: []scheduling.AppointmentStatus{scheduling.StatusPending, scheduling.StatusConfirmed},
		to:   scheduling.StatusRescheduleRequested,
	},
}

// Transition applies action to the appointment with a status-guarded update.
// Canceling stamps canceled_at, which the waitlist job keys on.
func (s *Service) Transition(ctx context.Context, store scheduling.TenantStore, id uuid.UUID, action Action) (*scheduling.Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, opTransition)
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduler.tenant_id", store.TenantID().String()),
		attribute.String("scheduler.appointment_id", id.String()),
		attribute.String("scheduler.action", string(action)),
	)

	t, ok := transitions[action]
	if !ok {
		return nil, scheduling.Invalid(opTransition, "unknown action %q", action)
	}
	appt, err := store.UpdateAppointmentStatus(ctx, id, t.from, t.to, s.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment status changed",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
		"action", action,
		"status", appt.Status,
	)
	return appt, nil
}
