package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

// Occupancy is what already claims time at a location, read inside the
// booking transaction.
type Occupancy struct {
	Appointments []Appointment
	Blocks       []AvailabilityBlock
}

// Intervals flattens occupancy into absolute intervals.
func (o Occupancy) Intervals() []timewindow.Interval {
	out := make([]timewindow.Interval, 0, len(o.Appointments)+len(o.Blocks))
	for _, a := range o.Appointments {
		out = append(out, a.Interval())
	}
	for _, b := range o.Blocks {
		out = append(out, b.Interval())
	}
	return out
}

// BookingCheck runs inside the store's write transaction against freshly read
// occupancy. Returning an error aborts the insert.
type BookingCheck func(Occupancy) error

// TenantStore is the tenant-bound accessor used by the engine. Every method is
// scoped to TenantID(); rows of other tenants are invisible.
type TenantStore interface {
	TenantID() uuid.UUID

	GetLocation(ctx context.Context, id uuid.UUID) (*Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)

	// ListOccupancy returns active appointments and provider blocks that
	// overlap window. With a provider, appointments of other providers are
	// excluded; provider-less appointments at the location always count.
	ListOccupancy(ctx context.Context, locationID uuid.UUID, providerID *uuid.UUID, window timewindow.Interval) (Occupancy, error)

	// ResolvePatient finds the patient by normalized phone (or email when no
	// phone is given) and creates it when absent.
	ResolvePatient(ctx context.Context, p Patient) (*Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	// InsertAppointment re-reads occupancy for the appointment's range, runs
	// check and inserts atomically. A lost race yields a SlotTaken error.
	InsertAppointment(ctx context.Context, appt *Appointment, check BookingCheck) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateAppointmentStatus moves an appointment to `to` only when its
	// current status is one of from. Canceling stamps canceled_at with at.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, at time.Time) (*Appointment, error)

	CreateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error
	ListActiveWaitlist(ctx context.Context, locationID uuid.UUID, limit int) ([]WaitlistEntry, error)
	ResolveWaitlistEntry(ctx context.Context, id uuid.UUID, resolution string, at time.Time) (*WaitlistEntry, error)

	// ClaimMessage records intent to send for (appointment, patient, type).
	// It returns false when a pending or sent entry already holds the key;
	// a failed entry is re-claimed.
	ClaimMessage(ctx context.Context, e *MessageLogEntry) (bool, error)
	// CompleteMessage marks a claimed entry sent or failed.
	CompleteMessage(ctx context.Context, id uuid.UUID, status MessageStatus, errMsg string) error
	CountMessages(ctx context.Context, appointmentID uuid.UUID, msgType MessageType) (int, error)
}

// JobStore exposes the narrow cross-tenant scans that background jobs need.
// It returns appointment rows only; follow-up reads go through TenantStore.
type JobStore interface {
	ListRecentlyCanceled(ctx context.Context, canceledSince time.Time, startWindow timewindow.Interval) ([]Appointment, error)
	ListConfirmedStartingIn(ctx context.Context, window timewindow.Interval) ([]Appointment, error)
}

// Scopes hands out tenant-bound accessors and the job scanner.
type Scopes interface {
	Tenant(tenantID uuid.UUID) TenantStore
	Jobs() JobStore
}

// TenantDirectory resolves tenants for public entry points.
type TenantDirectory interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
}
