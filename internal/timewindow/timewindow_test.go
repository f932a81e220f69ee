package timewindow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(9, 30)}
	b := Interval{Start: at(9, 30), End: at(10, 0)}
	c := Interval{Start: at(9, 15), End: at(9, 45)}

	assert.False(t, a.Overlaps(b), "touching intervals must not overlap")
	assert.False(t, b.Overlaps(a))
	assert.True(t, a.Overlaps(c))
	assert.True(t, c.Overlaps(b))
	assert.True(t, OverlapsAny(c, []Interval{b}))
	assert.False(t, OverlapsAny(a, []Interval{b}))
}

func TestContains(t *testing.T) {
	day := Interval{Start: at(9, 0), End: at(12, 0)}
	assert.True(t, day.Contains(Interval{Start: at(11, 30), End: at(12, 0)}))
	assert.False(t, day.Contains(Interval{Start: at(11, 45), End: at(12, 15)}))
	assert.True(t, ContainedByAny(Interval{Start: at(9, 0), End: at(9, 30)}, []Interval{day}))
}

func TestSubtract(t *testing.T) {
	open := []Interval{{Start: at(9, 0), End: at(12, 0)}, {Start: at(13, 0), End: at(17, 0)}}
	occ := []Interval{
		{Start: at(10, 0), End: at(10, 30)},
		{Start: at(10, 15), End: at(11, 0)},
		{Start: at(12, 30), End: at(13, 30)},
		{Start: at(16, 0), End: at(18, 0)},
	}

	got := Subtract(open, occ)
	want := []Interval{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(11, 0), End: at(12, 0)},
		{Start: at(13, 30), End: at(16, 0)},
	}
	assert.Equal(t, want, got)
}

func TestSubtractDropsZeroLength(t *testing.T) {
	open := []Interval{{Start: at(9, 0), End: at(9, 0)}}
	assert.Empty(t, Subtract(open, nil))

	full := []Interval{{Start: at(9, 0), End: at(10, 0)}}
	assert.Empty(t, Subtract(full, []Interval{{Start: at(8, 0), End: at(11, 0)}}))
}

func TestLoadLocationStrict(t *testing.T) {
	_, err := LoadLocation("")
	assert.True(t, errors.Is(err, ErrMissingTimezone))

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.True(t, errors.Is(err, ErrInvalidTimezone))

	_, err = LoadLocation("Local")
	assert.True(t, errors.Is(err, ErrInvalidTimezone))

	loc, err := LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestParseWallClock(t *testing.T) {
	w, err := ParseWallClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, WallClock{Hour: 9, Minute: 30}, w)
	assert.Equal(t, 570, w.Minutes())
	assert.Equal(t, "09:30", w.String())

	end, err := ParseWallClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, end.Minutes())

	for _, bad := range []string{"", "9", "25:00", "10:60", "24:30", "ab:cd", "10:5"} {
		_, err := ParseWallClock(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidWallClock), "expected error for %q", bad)
	}
}

func TestAtIsDSTCorrect(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	winter := At(Date{2024, time.January, 15}, WallClock{Hour: 9}, ny)
	summer := At(Date{2024, time.July, 15}, WallClock{Hour: 9}, ny)

	assert.Equal(t, 14, winter.UTC().Hour(), "EST is UTC-5")
	assert.Equal(t, 13, summer.UTC().Hour(), "EDT is UTC-4")
}

func TestDayBoundsAcrossSpringForward(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	bounds := DayBounds(Date{2024, time.March, 10}, ny)
	assert.Equal(t, 23*time.Hour, bounds.Duration())
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))

	_, err = ParseDate("2024-13-01")
	assert.True(t, errors.Is(err, ErrInvalidDate))

	saoPaulo := mustLoc(t, "America/Sao_Paulo")
	instant := time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-04", DateOf(instant, saoPaulo).String())

	var parsed Date
	require.NoError(t, parsed.UnmarshalText([]byte("2024-03-04")))
	text, err := parsed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", string(text))
}
