// Package jobs routes externally scheduled triggers to the reminder and
// waitlist jobs and records each run.
package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/reminders"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/waitlist"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Trigger sources recorded on each run.
const (
	SourceHTTP   = "http"
	SourceSQS    = "sqs"
	SourceLambda = "lambda"
	SourceTicker = "ticker"
)

// Trigger asks for one run of a job.
type Trigger struct {
	Job        string `json:"job"`
	HoursAhead int    `json:"hours_ahead,omitempty"`
	Source     string `json:"-"`
}

// ParseTrigger decodes a JSON trigger body.
func ParseTrigger(raw []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, scheduling.Invalid("jobs.parse_trigger", "malformed trigger: %v", err)
	}
	t.Job = strings.ToLower(strings.TrimSpace(t.Job))
	return t, nil
}

// Validate checks the job name and, for reminders, the lead time.
func (t Trigger) Validate() error {
	switch t.Job {
	case reminders.JobName:
		_, err := reminders.MessageTypeFor(t.HoursAhead)
		return err
	case waitlist.JobName:
		return nil
	default:
		return scheduling.Invalid("jobs.dispatch", "unknown job %q", t.Job)
	}
}

// RunStatus is the outcome of a dispatched run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one dispatched job execution.
type Run struct {
	ID         string    `dynamodbav:"runId" json:"run_id"`
	Job        string    `dynamodbav:"job" json:"job"`
	HoursAhead int       `dynamodbav:"hoursAhead,omitempty" json:"hours_ahead,omitempty"`
	Source     string    `dynamodbav:"source" json:"source"`
	Status     RunStatus `dynamodbav:"status" json:"status"`
	Sent       int       `dynamodbav:"sent" json:"sent"`
	Skipped    int       `dynamodbav:"skipped" json:"skipped"`
	Failed     int       `dynamodbav:"failed" json:"failed"`
	Error      string    `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	StartedAt  time.Time `dynamodbav:"startedAt" json:"started_at"`
	FinishedAt time.Time `dynamodbav:"finishedAt" json:"finished_at"`
	ExpiresAt  int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// ReminderRunner is satisfied by *reminders.Job.
type ReminderRunner interface {
	RunOnce(ctx context.Context, hoursAhead int) (notify.Tally, error)
}

// WaitlistRunner is satisfied by *waitlist.Job.
type WaitlistRunner interface {
	RunOnce(ctx context.Context) (notify.Tally, error)
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	Record(ctx context.Context, run *Run) error
}

// Dispatcher executes triggers.
type Dispatcher struct {
	reminders ReminderRunner
	waitlist  WaitlistRunner
	ledger    RunRecorder
	logger    *logging.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. ledger may be nil.
func NewDispatcher(rem ReminderRunner, wl WaitlistRunner, ledger RunRecorder, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{reminders: rem, waitlist: wl, ledger: ledger, logger: logger, now: time.Now}
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch runs the job named by t. Invalid triggers are rejected before
// anything runs and are not recorded. A ledger failure is logged and does
// not fail the run.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) (*Run, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	run := &Run{
		ID:         uuid.NewString(),
		Job:        t.Job,
		HoursAhead: t.HoursAhead,
		Source:     t.Source,
		StartedAt:  d.now().UTC(),
	}

	var (
		tally notify.Tally
		err   error
	)
	switch t.Job {
	case reminders.JobName:
		if d.reminders == nil {
			return nil, scheduling.Misconfigured("jobs.dispatch", nil, "reminder job is not configured")
		}
		tally, err = d.reminders.RunOnce(ctx, t.HoursAhead)
	case waitlist.JobName:
		if d.waitlist == nil {
			return nil, scheduling.Misconfigured("jobs.dispatch", nil, "waitlist job is not configured")
		}
		tally, err = d.waitlist.RunOnce(ctx)
	}

	run.FinishedAt = d.now().UTC()
	run.Sent, run.Skipped, run.Failed = tally.Sent, tally.Skipped, tally.Failed
	run.Status = RunSucceeded
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}

	if d.ledger != nil {
		if lerr := d.ledger.Record(ctx, run); lerr != nil {
			d.logger.Error("failed to record job run", "job", run.Job, "run_id", run.ID, "error", lerr)
		}
	}
	d.logger.Info("job run finished",
		"job", run.Job,
		"run_id", run.ID,
		"source", run.Source,
		"status", run.Status,
		"sent", run.Sent,
		"skipped", run.Skipped,
		"failed", run.Failed,
	)
	return run, err
}
