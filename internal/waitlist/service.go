package waitlist

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	opJoin    = "waitlist.join"
	opResolve = "waitlist.resolve"
)

// JoinRequest adds a patient to a location's waitlist.
type JoinRequest struct {
	LocationID uuid.UUID
	Patient    appointments.PatientIdentity
	Priority   int
}

// Service manages waitlist entries. Deactivation only happens here, never
// in the backfill job.
type Service struct {
	logger      *logging.Logger
	now         func() time.Time
	countryCode string
}

// NewService creates a waitlist entry service.
func NewService(logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		countryCode: "1",
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithDefaultCountryCode(cc string) *Service {
	if cc = strings.TrimPrefix(strings.TrimSpace(cc), "+"); cc != "" {
		s.countryCode = cc
	}
	return s
}

// Join resolves the patient and creates an active entry.
func (s *Service) Join(ctx context.Context, store scheduling.TenantStore, req JoinRequest) (*scheduling.WaitlistEntry, error) {
	if req.LocationID == uuid.Nil {
		return nil, scheduling.Invalid(opJoin, "location_id is required")
	}
	if req.Priority < 0 {
		return nil, scheduling.Invalid(opJoin, "priority must not be negative, got %d", req.Priority)
	}
	identity, err := appointments.NormalizeIdentity(req.Patient, s.countryCode)
	if err != nil {
		return nil, err
	}
	if _, err := store.GetLocation(ctx, req.LocationID); err != nil {
		return nil, err
	}
	patient, err := store.ResolvePatient(ctx, identity)
	if err != nil {
		return nil, err
	}
	entry := &scheduling.WaitlistEntry{
		LocationID: req.LocationID,
		PatientID:  patient.ID,
		Priority:   req.Priority,
		CreatedAt:  s.now(),
	}
	if err := store.CreateWaitlistEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("waitlist entry created",
		"tenant_id", store.TenantID(),
		"location_id", entry.LocationID,
		"patient_id", entry.PatientID,
		"priority", entry.Priority,
	)
	return entry, nil
}

// List returns active entries for a location in service order.
func (s *Service) List(ctx context.Context, store scheduling.TenantStore, locationID uuid.UUID, limit int) ([]scheduling.WaitlistEntry, error) {
	if locationID == uuid.Nil {
		return nil, scheduling.Invalid(opJoin, "location_id is required")
	}
	return store.ListActiveWaitlist(ctx, locationID, limit)
}

// Resolve deactivates an entry as accepted, declined or resolved.
func (s *Service) Resolve(ctx context.Context, store scheduling.TenantStore, id uuid.UUID, resolution string) (*scheduling.WaitlistEntry, error) {
	switch resolution {
	case scheduling.ResolutionAccepted, scheduling.ResolutionDeclined, scheduling.ResolutionResolved:
	default:
		return nil, scheduling.Invalid(opResolve, "unknown resolution %q", resolution)
	}
	entry, err := store.ResolveWaitlistEntry(ctx, id, resolution, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("waitlist entry resolved",
		"tenant_id", store.TenantID(),
		"entry_id", entry.ID,
		"resolution", resolution,
	)
	return entry, nil
}
