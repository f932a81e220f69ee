package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Outcome classifies one notification attempt.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeSkippedOptOut    Outcome = "skipped_opt_out"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeSkippedNoContact Outcome = "skipped_no_contact"
	OutcomeFailed           Outcome = "failed"
)

// Result is the advisory outcome of a patient notification. Callers log it
// and carry on; it never changes the result of the operation that caused it.
type Result struct {
	Outcome   Outcome
	Channel   string
	MessageID uuid.UUID
	Err       error
}

// Sent reports whether the message left the building.
func (r Result) Sent() bool { return r.Outcome == OutcomeSent }

// Skipped reports whether the message was intentionally not sent.
func (r Result) Skipped() bool {
	switch r.Outcome {
	case OutcomeSkippedOptOut, OutcomeSkippedDuplicate, OutcomeSkippedNoContact:
		return true
	}
	return false
}

// Request describes one outbound patient message keyed by
// (AppointmentID, Patient.ID, Type).
type Request struct {
	Patient       scheduling.Patient
	AppointmentID uuid.UUID
	Type          scheduling.MessageType
	Variables     []string
}

// Service sends patient notifications through the template channel when the
// patient has a phone and through email otherwise, guarded by the message log.
type Service struct {
	templates messaging.TemplateSender
	email     EmailSender
	catalog   messaging.Catalog
	logger    *logging.Logger
}

// NewService creates a notification service. Either sender may be nil.
func NewService(templates messaging.TemplateSender, email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		templates: templates,
		email:     email,
		catalog:   messaging.DefaultCatalog(),
		logger:    logger,
	}
}

// WithCatalog overrides the template catalog used for email subjects and bodies.
func (s *Service) WithCatalog(c messaging.Catalog) *Service {
	if c != nil {
		s.catalog = c
	}
	return s
}

// Notify claims the idempotency key, sends, and records the outcome. Errors
// are reported in the Result and logged, never returned.
func (s *Service) Notify(ctx context.Context, store scheduling.TenantStore, req Request) Result {
	if s == nil || store == nil {
		return Result{Outcome: OutcomeFailed, Err: errors.New("notify: service not configured")}
	}
	log := s.logger.With(
		"tenant_id", store.TenantID(),
		"patient_id", req.Patient.ID,
		"appointment_id", req.AppointmentID,
		"template", req.Type,
	)

	if req.Patient.OptedOut {
		log.Debug("notify: patient opted out")
		return Result{Outcome: OutcomeSkippedOptOut}
	}

	channel, send := s.route(store.TenantID(), req)
	if send == nil {
		log.Info("notify: no reachable contact for patient")
		return Result{Outcome: OutcomeSkippedNoContact}
	}

	appointmentID := req.AppointmentID
	entry := &scheduling.MessageLogEntry{
		TenantID:      store.TenantID(),
		PatientID:     req.Patient.ID,
		AppointmentID: &appointmentID,
		Direction:     scheduling.DirectionOutbound,
		Type:          req.Type,
		Status:        scheduling.MessagePending,
		Channel:       channel,
	}
	claimed, err := store.ClaimMessage(ctx, entry)
	if err != nil {
		log.Error("notify: claim message log failed", "error", err)
		return Result{Outcome: OutcomeFailed, Channel: channel, Err: fmt.Errorf("notify: claim: %w", err)}
	}
	if !claimed {
		log.Debug("notify: message already claimed")
		return Result{Outcome: OutcomeSkippedDuplicate, Channel: channel}
	}

	if sendErr := send(ctx, entry.ID); sendErr != nil {
		log.Error("notify: send failed", "channel", channel, "error", sendErr)
		if err := store.CompleteMessage(ctx, entry.ID, scheduling.MessageFailed, sendErr.Error()); err != nil {
			log.Error("notify: mark message failed", "error", err)
		}
		return Result{Outcome: OutcomeFailed, Channel: channel, MessageID: entry.ID, Err: sendErr}
	}
	if err := store.CompleteMessage(ctx, entry.ID, scheduling.MessageSent, ""); err != nil {
		log.Warn("notify: mark message sent", "error", err)
	}
	log.Info("notify: message sent", "channel", channel)
	return Result{Outcome: OutcomeSent, Channel: channel, MessageID: entry.ID}
}

func (s *Service) route(tenantID uuid.UUID, req Request) (string, func(context.Context, uuid.UUID) error) {
	p := req.Patient
	if p.Phone != "" && s.templates != nil {
		return s.templates.Channel(), func(ctx context.Context, _ uuid.UUID) error {
			return s.templates.SendTemplate(ctx, messaging.TemplateMessage{
				TenantID:  tenantID,
				To:        p.Phone,
				Template:  req.Type,
				Variables: req.Variables,
			})
		}
	}
	if p.Email != "" && s.email != nil {
		return "email", func(ctx context.Context, messageID uuid.UUID) error {
			spec, err := s.catalog.Lookup(req.Type)
			if err != nil {
				return err
			}
			return s.email.Send(ctx, EmailMessage{
				TenantID:  tenantID,
				MessageID: messageID,
				Template:  req.Type,
				To:        p.Email,
				ToName:    p.Name,
				Subject:   spec.EmailSubject,
				Body:      spec.Fill(req.Variables),
			})
		}
	}
	return "", nil
}

// AppointmentVariables builds the positional template variables: patient
// name, local start time, location name.
func AppointmentVariables(patientName string, start time.Time, loc *scheduling.Location) []string {
	name := patientName
	if name == "" {
		name = "there"
	}
	locationName := ""
	local := start.UTC()
	if loc != nil {
		locationName = loc.Name
		if zone, err := timewindow.LoadLocation(loc.Timezone); err == nil {
			local = start.In(zone)
		}
	}
	return []string{name, local.Format("Mon Jan 2 15:04 MST"), locationName}
}

// Tally counts notification outcomes across a batch.
type Tally struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add records one result.
func (t *Tally) Add(r Result) {
	switch {
	case r.Sent():
		t.Sent++
	case r.Skipped():
		t.Skipped++
	default:
		t.Failed++
	}
}
