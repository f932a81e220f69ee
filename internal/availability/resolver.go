package availability

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

const opResolve = "availability.resolve"

// LocationZone loads the location's timezone, reporting a ConfigurationError
// when it is missing or unknown.
func LocationZone(loc *scheduling.Location) (*time.Location, error) {
	tz, err := timewindow.LoadLocation(loc.Timezone)
	if err != nil {
		return nil, scheduling.Misconfigured(opResolve, err, "location %s timezone", loc.ID)
	}
	return tz, nil
}

// ResolveOpenIntervals returns the open [start, end) instants for date, which
// is a calendar date in the location's timezone. A provider with its own
// weekly hours replaces the location schedule; the two are never merged.
func ResolveOpenIntervals(date timewindow.Date, loc *scheduling.Location, provider *scheduling.Provider) ([]timewindow.Interval, error) {
	if loc == nil {
		return nil, scheduling.Invalid(opResolve, "location is required")
	}
	zone, err := LocationZone(loc)
	if err != nil {
		return nil, err
	}

	// The provider timezone only governs the provider's own weekly hours;
	// location hours are always read in the location timezone.
	hours := loc.Hours
	hoursZone := zone
	if provider != nil {
		var pz *time.Location
		if provider.Timezone != "" {
			pz, err = timewindow.LoadLocation(provider.Timezone)
			if err != nil {
				return nil, scheduling.Misconfigured(opResolve, err, "provider %s timezone", provider.ID)
			}
		}
		if provider.Hours != nil {
			hours = *provider.Hours
			if pz != nil {
				hoursZone = pz
			}
		}
	}

	day := hours.ForDay(date.Weekday())
	if len(day) == 0 {
		return nil, nil
	}

	out := make([]timewindow.Interval, 0, len(day))
	prevEnd := time.Time{}
	for _, h := range day {
		open, err := timewindow.ParseWallClock(h.Open)
		if err != nil {
			return nil, scheduling.Misconfigured(opResolve, err, "business hours for %s", date.Weekday())
		}
		closing, err := timewindow.ParseWallClock(h.Close)
		if err != nil {
			return nil, scheduling.Misconfigured(opResolve, err, "business hours for %s", date.Weekday())
		}
		iv := timewindow.Interval{
			Start: timewindow.At(date, open, hoursZone),
			End:   timewindow.At(date, closing, hoursZone),
		}
		if iv.End.Before(iv.Start) {
			return nil, scheduling.Misconfigured(opResolve, nil, "business hours for %s close before they open", date.Weekday())
		}
		if !prevEnd.IsZero() && iv.Start.Before(prevEnd) {
			return nil, scheduling.Misconfigured(opResolve, nil, "business hours for %s overlap", date.Weekday())
		}
		prevEnd = iv.End
		out = append(out, iv)
	}
	return out, nil
}
