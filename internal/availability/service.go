package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var availabilityTracer = otel.Tracer("scheduler.internal.availability")

const (
	opSearch           = "availability.search"
	defaultMaxScanDays = 90
)

// SlotQuery selects one day of slots. Zero DurationMinutes falls back to the
// service duration, then to the location's slot length; nil BufferMinutes
// uses the location buffer.
type SlotQuery struct {
	Date            timewindow.Date
	LocationID      uuid.UUID
	ProviderID      *uuid.UUID
	ServiceID       *uuid.UUID
	DurationMinutes int
	BufferMinutes   *int
	NotBefore       time.Time
}

// SearchQuery scans forward from Date for the first Limit days with slots.
type SearchQuery struct {
	SlotQuery
	Limit      int
	DaysToScan int
}

// Plan is the resolved configuration shared by every day of a query.
type Plan struct {
	Location        *scheduling.Location
	Provider        *scheduling.Provider
	Zone            *time.Location
	DurationMinutes int
	BufferMinutes   int
}

// Service computes availability against a tenant-bound store.
type Service struct {
	logger      *logging.Logger
	metrics     *metrics.SchedulingMetrics
	maxScanDays int
}

// NewService creates an availability service.
func NewService(logger *logging.Logger, m *metrics.SchedulingMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{logger: logger, metrics: m, maxScanDays: defaultMaxScanDays}
}

// WithMaxScanDays caps SearchQuery.DaysToScan.
func (s *Service) WithMaxScanDays(n int) *Service {
	if n > 0 {
		s.maxScanDays = n
	}
	return s
}

// Prepare loads the location, provider and service for q and settles the
// duration and buffer.
func (s *Service) Prepare(ctx context.Context, store scheduling.TenantStore, q SlotQuery) (*Plan, error) {
	if q.LocationID == uuid.Nil {
		return nil, scheduling.Invalid(opSlots, "location_id is required")
	}
	loc, err := store.GetLocation(ctx, q.LocationID)
	if err != nil {
		return nil, err
	}
	zone, err := LocationZone(loc)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Location: loc, Zone: zone, BufferMinutes: loc.BufferMinutes}
	if q.ProviderID != nil {
		prov, err := store.GetProvider(ctx, *q.ProviderID)
		if err != nil {
			return nil, err
		}
		plan.Provider = prov
	}

	duration := q.DurationMinutes
	if duration == 0 && q.ServiceID != nil {
		svc, err := store.GetService(ctx, *q.ServiceID)
		if err != nil {
			return nil, err
		}
		duration = svc.DurationMinutes
	}
	if duration == 0 {
		duration = loc.SlotMinutes
	}
	if duration <= 0 {
		return nil, scheduling.Invalid(opSlots, "duration must be positive, got %d", duration)
	}
	plan.DurationMinutes = duration
	if q.BufferMinutes != nil {
		plan.BufferMinutes = *q.BufferMinutes
	}
	if plan.BufferMinutes < 0 {
		return nil, scheduling.Invalid(opSlots, "buffer must not be negative, got %d", plan.BufferMinutes)
	}
	return plan, nil
}

func (p *Plan) providerID() *uuid.UUID {
	if p.Provider == nil {
		return nil
	}
	id := p.Provider.ID
	return &id
}

// SlotsForDay resolves hours for date, reads occupancy and generates slots.
func (s *Service) SlotsForDay(ctx context.Context, store scheduling.TenantStore, plan *Plan, date timewindow.Date, notBefore time.Time) ([]Slot, error) {
	open, err := ResolveOpenIntervals(date, plan.Location, plan.Provider)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	window := timewindow.Interval{Start: open[0].Start, End: open[len(open)-1].End}
	if !notBefore.IsZero() && !notBefore.Before(window.End) {
		return nil, nil
	}
	occ, err := store.ListOccupancy(ctx, plan.Location.ID, plan.providerID(), window)
	if err != nil {
		return nil, err
	}
	return GenerateSlots(open, occ.Intervals(), plan.DurationMinutes, plan.BufferMinutes, notBefore)
}

// DaySlots returns the free slots for a single date.
func (s *Service) DaySlots(ctx context.Context, store scheduling.TenantStore, q SlotQuery) (DaySlots, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.day_slots")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveSearch("day", time.Since(started)) }()

	plan, err := s.Prepare(ctx, store, q)
	if err != nil {
		return DaySlots{}, err
	}
	span.SetAttributes(
		attribute.String("scheduler.tenant_id", store.TenantID().String()),
		attribute.String("scheduler.location_id", plan.Location.ID.String()),
		attribute.String("scheduler.date", q.Date.String()),
	)
	slots, err := s.SlotsForDay(ctx, store, plan, q.Date, q.NotBefore)
	if err != nil {
		return DaySlots{}, err
	}
	return DaySlots{Date: q.Date, Slots: slots}, nil
}

// FindNextAvailableSlots walks forward one day at a time from q.Date and
// returns the first q.Limit days that have at least one slot. A zero Date
// starts from today in the location's timezone. An exhausted
// horizon yields an empty result, not an error.
func (s *Service) FindNextAvailableSlots(ctx context.Context, store scheduling.TenantStore, q SearchQuery) ([]DaySlots, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.search")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveSearch("next", time.Since(started)) }()

	if q.Limit <= 0 {
		return nil, scheduling.Invalid(opSearch, "limit must be positive, got %d", q.Limit)
	}
	if q.DaysToScan <= 0 {
		return nil, scheduling.Invalid(opSearch, "days_to_scan must be positive, got %d", q.DaysToScan)
	}
	if q.DaysToScan > s.maxScanDays {
		return nil, scheduling.Invalid(opSearch, "days_to_scan must be at most %d", s.maxScanDays)
	}
	plan, err := s.Prepare(ctx, store, q.SlotQuery)
	if err != nil {
		return nil, err
	}
	if q.Date.IsZero() {
		ref := q.NotBefore
		if ref.IsZero() {
			ref = time.Now()
		}
		q.Date = timewindow.DateOf(ref, plan.Zone)
	}
	span.SetAttributes(
		attribute.String("scheduler.tenant_id", store.TenantID().String()),
		attribute.String("scheduler.location_id", plan.Location.ID.String()),
		attribute.Int("scheduler.days_to_scan", q.DaysToScan),
	)

	results := make([]DaySlots, 0, q.Limit)
	for i := 0; i < q.DaysToScan && len(results) < q.Limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := q.Date.AddDays(i)
		slots, err := s.SlotsForDay(ctx, store, plan, date, q.NotBefore)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			results = append(results, DaySlots{Date: date, Slots: slots})
		}
	}
	s.logger.Debug("availability: search complete",
		"tenant_id", store.TenantID(),
		"location_id", plan.Location.ID,
		"from", q.Date.String(),
		"days_found", len(results),
	)
	return results, nil
}
