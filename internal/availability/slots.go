package availability

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

const opSlots = "availability.slots"

// Slot is a bookable [Start, End) interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Interval returns the slot as a half-open interval.
func (s Slot) Interval() timewindow.Interval {
	return timewindow.Interval{Start: s.Start, End: s.End}
}

// DaySlots groups the free slots of one local calendar date.
type DaySlots struct {
	Date  timewindow.Date `json:"date"`
	Slots []Slot          `json:"slots"`
}

// GenerateSlots lays fixed-length slots over the open intervals minus the
// occupied ones. Within each free sub-interval the cursor starts at the
// sub-interval start and advances by duration+buffer; a candidate whose end
// passes the sub-interval end stops the walk. Candidates starting before
// notBefore are skipped (zero notBefore disables the filter).
func GenerateSlots(open, occupied []timewindow.Interval, durationMinutes, bufferMinutes int, notBefore time.Time) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, scheduling.Invalid(opSlots, "duration must be positive, got %d", durationMinutes)
	}
	if bufferMinutes < 0 {
		return nil, scheduling.Invalid(opSlots, "buffer must not be negative, got %d", bufferMinutes)
	}
	duration := time.Duration(durationMinutes) * time.Minute
	step := duration + time.Duration(bufferMinutes)*time.Minute

	var slots []Slot
	for _, free := range timewindow.Subtract(open, occupied) {
		for cursor := free.Start; !cursor.Add(duration).After(free.End); cursor = cursor.Add(step) {
			if !notBefore.IsZero() && cursor.Before(notBefore) {
				continue
			}
			candidate := timewindow.Interval{Start: cursor, End: cursor.Add(duration)}
			if timewindow.OverlapsAny(candidate, occupied) {
				continue
			}
			slots = append(slots, Slot{Start: candidate.Start, End: candidate.End})
		}
	}
	return slots, nil
}
