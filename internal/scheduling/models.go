package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

// Tenant is the top-level isolation boundary.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DayHours is one open interval in 24-hour "HH:MM" wall-clock form.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeeklyHours maps each weekday to its ordered, disjoint open intervals.
// A nil or empty slice means closed that day.
type WeeklyHours struct {
	Monday    []DayHours `json:"monday,omitempty"`
	Tuesday   []DayHours `json:"tuesday,omitempty"`
	Wednesday []DayHours `json:"wednesday,omitempty"`
	Thursday  []DayHours `json:"thursday,omitempty"`
	Friday    []DayHours `json:"friday,omitempty"`
	Saturday  []DayHours `json:"saturday,omitempty"`
	Sunday    []DayHours `json:"sunday,omitempty"`
}

// ForDay returns the configured intervals for weekday.
func (w WeeklyHours) ForDay(weekday time.Weekday) []DayHours {
	switch weekday {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	}
	return nil
}

// Validate checks every interval parses, closes after it opens, and that
// intervals within a day are ordered and non-overlapping.
func (w WeeklyHours) Validate() error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		prevClose := -1
		for _, h := range w.ForDay(d) {
			open, err := timewindow.ParseWallClock(h.Open)
			if err != nil {
				return fmt.Errorf("%s: %w", d, err)
			}
			closing, err := timewindow.ParseWallClock(h.Close)
			if err != nil {
				return fmt.Errorf("%s: %w", d, err)
			}
			if closing.Minutes() < open.Minutes() {
				return fmt.Errorf("%s: close %s before open %s", d, h.Close, h.Open)
			}
			if open.Minutes() < prevClose {
				return fmt.Errorf("%s: interval %s-%s overlaps or is out of order", d, h.Open, h.Close)
			}
			prevClose = closing.Minutes()
		}
	}
	return nil
}

// Location is a tenant site with its own timezone and schedule.
type Location struct {
	ID            uuid.UUID   `json:"id"`
	TenantID      uuid.UUID   `json:"tenant_id"`
	Name          string      `json:"name"`
	Timezone      string      `json:"timezone"`
	Hours         WeeklyHours `json:"hours"`
	SlotMinutes   int         `json:"slot_minutes"`
	BufferMinutes int         `json:"buffer_minutes"`
}

// Provider is a staff member. A non-nil Hours replaces the location schedule.
type Provider struct {
	ID                uuid.UUID    `json:"id"`
	TenantID          uuid.UUID    `json:"tenant_id"`
	Name              string       `json:"name"`
	DefaultLocationID *uuid.UUID   `json:"default_location_id,omitempty"`
	Timezone          string       `json:"timezone,omitempty"`
	Hours             *WeeklyHours `json:"hours,omitempty"`
}

// AvailabilityBlock marks a provider unavailable for an absolute interval.
type AvailabilityBlock struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     string    `json:"reason,omitempty"`
}

// Interval returns the block as a half-open interval.
func (b AvailabilityBlock) Interval() timewindow.Interval {
	return timewindow.Interval{Start: b.Start, End: b.End}
}

// Service carries the default appointment length.
type Service struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending             AppointmentStatus = "pending"
	StatusConfirmed           AppointmentStatus = "confirmed"
	StatusRescheduleRequested AppointmentStatus = "reschedule_requested"
	StatusCanceled            AppointmentStatus = "canceled"
	StatusCompleted           AppointmentStatus = "completed"
	StatusNoShow              AppointmentStatus = "no_show"
)

// IsActive reports whether the status blocks its time range.
func (s AppointmentStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduleRequested, StatusCanceled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Appointment is never deleted; only its status changes.
type Appointment struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	LocationID uuid.UUID         `json:"location_id"`
	ProviderID *uuid.UUID        `json:"provider_id,omitempty"`
	ServiceID  *uuid.UUID        `json:"service_id,omitempty"`
	PatientID  uuid.UUID         `json:"patient_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Status     AppointmentStatus `json:"status"`
	Channel    string            `json:"channel,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Interval returns [Start, End).
func (a Appointment) Interval() timewindow.Interval {
	return timewindow.Interval{Start: a.Start, End: a.End}
}

// ConflictsWith reports whether two appointments may not coexist: both
// active, same tenant and location, overlapping, and either one has no
// provider or both name the same provider.
func (a Appointment) ConflictsWith(b Appointment) bool {
	if !a.Status.IsActive() || !b.Status.IsActive() {
		return false
	}
	if a.TenantID != b.TenantID || a.LocationID != b.LocationID {
		return false
	}
	if !a.Interval().Overlaps(b.Interval()) {
		return false
	}
	if a.ProviderID == nil || b.ProviderID == nil {
		return true
	}
	return *a.ProviderID == *b.ProviderID
}

// Patient is unique per tenant by normalized phone.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	OptedOut  bool      `json:"opted_out"`
	CreatedAt time.Time `json:"created_at"`
}

// WaitlistEntry asks for earlier slots at a location. Lower priority is served first.
type WaitlistEntry struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	LocationID uuid.UUID  `json:"location_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	Priority   int        `json:"priority"`
	Active     bool       `json:"active"`
	Resolution string     `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Waitlist resolutions that deactivate an entry.
const (
	ResolutionAccepted = "accepted"
	ResolutionDeclined = "declined"
	ResolutionResolved = "resolved"
)

// MessageType is the logical template name and the idempotency tag.
type MessageType string

const (
	MessageAppointmentCreated MessageType = "appointment_created"
	MessageReminder24h        MessageType = "reminder_24h"
	MessageReminder2h         MessageType = "reminder_2h"
	MessageWaitlistOffer      MessageType = "waitlist_offer"
)

// MessageDirection distinguishes outbound from inbound log rows.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// MessageStatus tracks a claimed log row through delivery.
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// MessageLogEntry is the audit and idempotency record of a message.
type MessageLogEntry struct {
	ID            uuid.UUID        `json:"id"`
	TenantID      uuid.UUID        `json:"tenant_id"`
	PatientID     uuid.UUID        `json:"patient_id"`
	AppointmentID *uuid.UUID       `json:"appointment_id,omitempty"`
	Direction     MessageDirection `json:"direction"`
	Type          MessageType      `json:"type"`
	Status        MessageStatus    `json:"status"`
	Channel       string           `json:"channel,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
