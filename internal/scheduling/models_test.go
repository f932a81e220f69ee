package scheduling

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWeeklyHoursValidate(t *testing.T) {
	ok := WeeklyHours{Monday: []DayHours{{Open: "09:00", Close: "12:00"}, {Open: "13:00", Close: "17:00"}}}
	assert.NoError(t, ok.Validate())

	overlapping := WeeklyHours{Monday: []DayHours{{Open: "09:00", Close: "12:00"}, {Open: "11:00", Close: "17:00"}}}
	assert.Error(t, overlapping.Validate())

	backwards := WeeklyHours{Friday: []DayHours{{Open: "17:00", Close: "09:00"}}}
	assert.Error(t, backwards.Validate())

	malformed := WeeklyHours{Sunday: []DayHours{{Open: "9am", Close: "17:00"}}}
	assert.Error(t, malformed.Validate())

	assert.Len(t, ok.ForDay(time.Monday), 2)
	assert.Empty(t, ok.ForDay(time.Tuesday))
}

func TestAppointmentConflictsWith(t *testing.T) {
	tenant, loc := uuid.New(), uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	mk := func(provider *uuid.UUID, start time.Time, status AppointmentStatus) Appointment {
		return Appointment{TenantID: tenant, LocationID: loc, ProviderID: provider, Start: start, End: start.Add(30 * time.Minute), Status: status}
	}

	assert.True(t, mk(&p1, base, StatusPending).ConflictsWith(mk(&p1, base.Add(15*time.Minute), StatusConfirmed)))
	assert.False(t, mk(&p1, base, StatusPending).ConflictsWith(mk(&p2, base, StatusConfirmed)), "different providers may overlap")
	assert.True(t, mk(nil, base, StatusPending).ConflictsWith(mk(&p2, base, StatusConfirmed)), "location-level booking blocks every provider")
	assert.False(t, mk(nil, base, StatusPending).ConflictsWith(mk(nil, base.Add(30*time.Minute), StatusPending)), "touching is not overlapping")
	assert.False(t, mk(nil, base, StatusCanceled).ConflictsWith(mk(nil, base, StatusPending)))

	other := mk(nil, base, StatusPending)
	other.LocationID = uuid.New()
	assert.False(t, mk(nil, base, StatusPending).ConflictsWith(other))
}

func TestAvailabilityErrorMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Taken("appointments.create", nil))

	assert.True(t, errors.Is(err, ErrSlotTaken))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, SlotTaken, KindOf(err))
	assert.True(t, IsKind(Invalid("op", "bad %s", "duration"), ValidationError))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))

	cause := errors.New("unknown time zone")
	cfg := Misconfigured("availability.resolve", cause, "location %s timezone", "x")
	assert.True(t, errors.Is(cfg, cause))
	assert.Contains(t, cfg.Error(), "configuration_error")
	assert.Contains(t, Missing("op", "location").Error(), "location not found")
}
