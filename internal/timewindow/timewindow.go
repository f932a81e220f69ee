// Package timewindow converts tenant wall-clock times to absolute instants and
// compares half-open [start, end) intervals.
package timewindow

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingTimezone is returned when a location carries no timezone.
	ErrMissingTimezone = errors.New("timewindow: missing timezone")
	// ErrInvalidTimezone is returned for identifiers the tz database does not know.
	ErrInvalidTimezone = errors.New("timewindow: invalid timezone")
	// ErrInvalidWallClock is returned for malformed HH:MM values.
	ErrInvalidWallClock = errors.New("timewindow: invalid wall clock")
	// ErrInvalidDate is returned for malformed YYYY-MM-DD values.
	ErrInvalidDate = errors.New("timewindow: invalid date")
)

// Interval is a half-open [Start, End) range of absolute instants.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Empty reports whether the interval has no length.
func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Duration returns End - Start, or zero for empty intervals.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Overlaps is the half-open overlap test aStart < bEnd && aEnd > bStart.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OverlapsAny reports whether iv overlaps any interval in set.
func OverlapsAny(iv Interval, set []Interval) bool {
	for _, o := range set {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}

// ContainedByAny reports whether iv lies entirely inside one interval of set.
func ContainedByAny(iv Interval, set []Interval) bool {
	for _, o := range set {
		if o.Contains(iv) {
			return true
		}
	}
	return false
}

// Subtract removes every occupied interval from each open interval and returns
// the remaining non-empty pieces in chronological order.
func Subtract(open, occupied []Interval) []Interval {
	occ := make([]Interval, 0, len(occupied))
	for _, o := range occupied {
		if !o.Empty() {
			occ = append(occ, o)
		}
	}
	sort.Slice(occ, func(a, b int) bool { return occ[a].Start.Before(occ[b].Start) })

	var out []Interval
	for _, iv := range open {
		if iv.Empty() {
			continue
		}
		cursor := iv.Start
		for _, o := range occ {
			if !o.End.After(cursor) || !o.Start.Before(iv.End) {
				continue
			}
			if o.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: o.Start})
			}
			if o.End.After(cursor) {
				cursor = o.End
			}
			if !cursor.Before(iv.End) {
				break
			}
		}
		if cursor.Before(iv.End) {
			out = append(out, Interval{Start: cursor, End: iv.End})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Start.Before(out[b].Start) })
	return out
}

// LoadLocation resolves an IANA timezone. Unlike time.LoadLocation it never
// maps an empty name to UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingTimezone
	}
	if strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// WallClock is a time of day in a tenant's local timezone.
type WallClock struct {
	Hour   int
	Minute int
}

// ParseWallClock parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseWallClock(s string) (WallClock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return WallClock{}, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return WallClock{}, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return WallClock{}, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return WallClock{}, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	return WallClock{Hour: h, Minute: m}, nil
}

// Minutes returns minutes since midnight.
func (w WallClock) Minutes() int {
	return w.Hour*60 + w.Minute
}

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

// Date is a calendar date with no timezone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	lt := t.In(loc)
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

// AddDays returns the date n days later (n may be negative).
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Weekday is independent of timezone since a Date is already local.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// At converts a wall-clock time on date to an absolute instant in loc. The
// offset is taken from the tz database for that specific day, so the same
// wall clock maps to different UTC instants across DST transitions.
func At(d Date, w WallClock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, w.Hour, w.Minute, 0, 0, loc)
}

// DayBounds returns [local midnight, next local midnight) for d in loc.
func DayBounds(d Date, loc *time.Location) Interval {
	next := d.AddDays(1)
	return Interval{
		Start: time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc),
		End:   time.Date(next.Year, next.Month, next.Day, 0, 0, 0, 0, loc),
	}
}
