package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

type fakeReminders struct {
	hours []int
	tally notify.Tally
	err   error
}

func (f *fakeReminders) RunOnce(_ context.Context, hoursAhead int) (notify.Tally, error) {
	f.hours = append(f.hours, hoursAhead)
	return f.tally, f.err
}

type fakeWaitlist struct {
	calls int
	tally notify.Tally
	err   error
}

func (f *fakeWaitlist) RunOnce(context.Context) (notify.Tally, error) {
	f.calls++
	return f.tally, f.err
}

type fakeLedger struct {
	runs []Run
	err  error
}

func (f *fakeLedger) Record(_ context.Context, run *Run) error {
	f.runs = append(f.runs, *run)
	return f.err
}

func fixedClock() func() time.Time {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestDispatchReminders(t *testing.T) {
	rem := &fakeReminders{tally: notify.Tally{Sent: 3, Skipped: 1}}
	ledger := &fakeLedger{}
	d := NewDispatcher(rem, &fakeWaitlist{}, ledger, nil).WithClock(fixedClock())

	run, err := d.Dispatch(context.Background(), Trigger{Job: "reminders", HoursAhead: 2, Source: SourceHTTP})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, rem.hours)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Equal(t, 3, run.Sent)
	assert.Equal(t, 1, run.Skipped)
	assert.NotEmpty(t, run.ID)
	require.Len(t, ledger.runs, 1)
	assert.Equal(t, SourceHTTP, ledger.runs[0].Source)
	assert.Equal(t, 2, ledger.runs[0].HoursAhead)
}

func TestDispatchRejectsUnsupportedLeadTime(t *testing.T) {
	rem := &fakeReminders{}
	ledger := &fakeLedger{}
	d := NewDispatcher(rem, &fakeWaitlist{}, ledger, nil)

	for _, hours := range []int{0, 1, 12, 48} {
		_, err := d.Dispatch(context.Background(), Trigger{Job: "reminders", HoursAhead: hours})
		assert.True(t, scheduling.IsKind(err, scheduling.ValidationError), "hours=%d", hours)
	}
	assert.Empty(t, rem.hours)
	assert.Empty(t, ledger.runs)
}

func TestDispatchUnknownJob(t *testing.T) {
	d := NewDispatcher(&fakeReminders{}, &fakeWaitlist{}, nil, nil)
	_, err := d.Dispatch(context.Background(), Trigger{Job: "cleanup"})
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))
}

func TestDispatchWaitlistFailureIsRecorded(t *testing.T) {
	wl := &fakeWaitlist{err: errors.New("db down")}
	ledger := &fakeLedger{}
	d := NewDispatcher(&fakeReminders{}, wl, ledger, nil).WithClock(fixedClock())

	run, err := d.Dispatch(context.Background(), Trigger{Job: "waitlist", Source: SourceSQS})
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "db down", run.Error)
	assert.Equal(t, 1, wl.calls)
	require.Len(t, ledger.runs, 1)
	assert.Equal(t, RunFailed, ledger.runs[0].Status)
}

func TestDispatchLedgerErrorDoesNotFailRun(t *testing.T) {
	d := NewDispatcher(&fakeReminders{}, &fakeWaitlist{}, &fakeLedger{err: errors.New("throttled")}, nil)
	run, err := d.Dispatch(context.Background(), Trigger{Job: "waitlist"})
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
}

func TestDispatchMissingRunner(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	_, err := d.Dispatch(context.Background(), Trigger{Job: "waitlist"})
	assert.True(t, scheduling.IsKind(err, scheduling.ConfigurationError))
}

func TestParseTrigger(t *testing.T) {
	tr, err := ParseTrigger([]byte(`{"job":" Reminders ","hours_ahead":24}`))
	require.NoError(t, err)
	assert.Equal(t, Trigger{Job: "reminders", HoursAhead: 24}, tr)
	require.NoError(t, tr.Validate())

	_, err = ParseTrigger([]byte(`not json`))
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))
}
