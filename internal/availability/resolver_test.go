package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

func monday() timewindow.Date {
	return timewindow.Date{Year: 2024, Month: time.March, Day: 4}
}

func clinicLocation(tz string) *scheduling.Location {
	return &scheduling.Location{
		ID:       uuid.New(),
		Timezone: tz,
		Hours: scheduling.WeeklyHours{
			Monday: []scheduling.DayHours{{Open: "09:00", Close: "12:00"}, {Open: "13:00", Close: "17:00"}},
			Sunday: []scheduling.DayHours{{Open: "10:00", Close: "14:00"}},
		},
		SlotMinutes: 30,
	}
}

func TestResolveOpenIntervals_LocationSchedule(t *testing.T) {
	loc := clinicLocation("America/Sao_Paulo")

	open, err := ResolveOpenIntervals(monday(), loc, nil)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), open[0].Start.UTC())
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), open[0].End.UTC())
	assert.Equal(t, time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC), open[1].Start.UTC())
}

func TestResolveOpenIntervals_ClosedDay(t *testing.T) {
	loc := clinicLocation("America/Sao_Paulo")
	tuesday := monday().AddDays(1)

	open, err := ResolveOpenIntervals(tuesday, loc, nil)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResolveOpenIntervals_ProviderOverrideReplaces(t *testing.T) {
	loc := clinicLocation("America/Sao_Paulo")
	provider := &scheduling.Provider{
		ID:    uuid.New(),
		Hours: &scheduling.WeeklyHours{Tuesday: []scheduling.DayHours{{Open: "08:00", Close: "10:00"}}},
	}

	open, err := ResolveOpenIntervals(monday(), loc, provider)
	require.NoError(t, err)
	assert.Empty(t, open, "override has no monday hours, so the provider is off even though the location is open")

	open, err = ResolveOpenIntervals(monday().AddDays(1), loc, provider)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 11, open[0].Start.UTC().Hour())

	noOverride := &scheduling.Provider{ID: uuid.New()}
	open, err = ResolveOpenIntervals(monday(), loc, noOverride)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestResolveOpenIntervals_DST(t *testing.T) {
	loc := clinicLocation("America/New_York")
	loc.Hours.Sunday = []scheduling.DayHours{{Open: "09:00", Close: "17:00"}}

	before := timewindow.Date{Year: 2024, Month: time.March, Day: 3}
	after := timewindow.Date{Year: 2024, Month: time.March, Day: 10}

	openBefore, err := ResolveOpenIntervals(before, loc, nil)
	require.NoError(t, err)
	openAfter, err := ResolveOpenIntervals(after, loc, nil)
	require.NoError(t, err)

	assert.Equal(t, 14, openBefore[0].Start.UTC().Hour())
	assert.Equal(t, 13, openAfter[0].Start.UTC().Hour())
	assert.Equal(t, 8*time.Hour, openAfter[0].Duration())
}

func TestResolveOpenIntervals_ConfigurationErrors(t *testing.T) {
	for _, tz := range []string{"", "Not/AZone"} {
		_, err := ResolveOpenIntervals(monday(), clinicLocation(tz), nil)
		assert.Truef(t, scheduling.IsKind(err, scheduling.ConfigurationError), "tz %q: %v", tz, err)
	}

	badHours := clinicLocation("UTC")
	badHours.Hours.Monday = []scheduling.DayHours{{Open: "nine", Close: "12:00"}}
	_, err := ResolveOpenIntervals(monday(), badHours, nil)
	assert.True(t, scheduling.IsKind(err, scheduling.ConfigurationError))

	overlapping := clinicLocation("UTC")
	overlapping.Hours.Monday = []scheduling.DayHours{{Open: "09:00", Close: "12:00"}, {Open: "11:00", Close: "13:00"}}
	_, err = ResolveOpenIntervals(monday(), overlapping, nil)
	assert.True(t, scheduling.IsKind(err, scheduling.ConfigurationError))

	badProvider := &scheduling.Provider{ID: uuid.New(), Timezone: "Nowhere/Town"}
	_, err = ResolveOpenIntervals(monday(), clinicLocation("UTC"), badProvider)
	assert.True(t, scheduling.IsKind(err, scheduling.ConfigurationError))
}

func TestResolveOpenIntervals_ProviderTimezone(t *testing.T) {
	loc := clinicLocation("America/Sao_Paulo")
	provider := &scheduling.Provider{
		ID:       uuid.New(),
		Timezone: "UTC",
		Hours:    &scheduling.WeeklyHours{Monday: []scheduling.DayHours{{Open: "12:00", Close: "14:00"}}},
	}
	open, err := ResolveOpenIntervals(monday(), loc, provider)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), open[0].Start.UTC())
}

func TestResolveOpenIntervals_ProviderTimezoneWithoutOverride(t *testing.T) {
	loc := clinicLocation("America/Sao_Paulo")
	provider := &scheduling.Provider{ID: uuid.New(), Timezone: "Asia/Tokyo"}

	open, err := ResolveOpenIntervals(monday(), loc, provider)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), open[0].Start.UTC(),
		"location hours stay in the location timezone")
	assert.Equal(t, time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC), open[1].End.UTC())
}
