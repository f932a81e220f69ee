// Package reminders sends appointment reminders at fixed lead times.
package reminders

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var remindersTracer = otel.Tracer("scheduler.internal.reminders")

// JobName labels metrics and the run ledger.
const JobName = "reminders"

// DefaultTolerance is the half-width of the lead-time window. It must stay
// above the poll interval so no appointment falls between two runs.
const DefaultTolerance = 20 * time.Minute

// MessageTypeFor maps a lead time in hours to its reminder template.
func MessageTypeFor(hoursAhead int) (scheduling.MessageType, error) {
	switch hoursAhead {
	case 24:
		return scheduling.MessageReminder24h, nil
	case 2:
		return scheduling.MessageReminder2h, nil
	}
	return "", scheduling.Invalid("reminders.run", "hours_ahead must be 24 or 2, got %d", hoursAhead)
}

// Notifier sends a patient message guarded by the message log.
type Notifier interface {
	Notify(ctx context.Context, store scheduling.TenantStore, req notify.Request) notify.Result
}

// Job reminds patients of confirmed appointments starting roughly
// hoursAhead from now.
type Job struct {
	scopes    scheduling.Scopes
	notifier  Notifier
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	tolerance time.Duration
	interval  time.Duration
	leads     []int
	now       func() time.Time
}

// NewJob creates a reminder job for the 24h and 2h lead times.
func NewJob(scopes scheduling.Scopes, notifier Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Job {
	if logger == nil {
		logger = logging.Default()
	}
	return &Job{
		scopes:    scopes,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		tolerance: DefaultTolerance,
		interval:  10 * time.Minute,
		leads:     []int{24, 2},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *Job) WithTolerance(d time.Duration) *Job {
	if d > 0 {
		j.tolerance = d
	}
	return j
}

func (j *Job) WithInterval(d time.Duration) *Job {
	if d > 0 {
		j.interval = d
	}
	return j
}

func (j *Job) WithClock(now func() time.Time) *Job {
	if now != nil {
		j.now = now
	}
	return j
}

// Run polls every lead time until ctx is done.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.drain(ctx)
		}
	}
}

func (j *Job) drain(ctx context.Context) {
	for _, hours := range j.leads {
		if _, err := j.RunOnce(ctx, hours); err != nil {
			j.logger.Error("reminder run failed", "hours_ahead", hours, "error", err)
		}
	}
}

// Window returns the start-time range selected for hoursAhead at now.
func (j *Job) Window(now time.Time, hoursAhead int) timewindow.Interval {
	target := now.Add(time.Duration(hoursAhead) * time.Hour)
	return timewindow.Interval{Start: target.Add(-j.tolerance), End: target.Add(j.tolerance)}
}

// RunOnce sends one reminder per confirmed appointment whose start lies
// within the tolerance of now+hoursAhead. Only invalid input and a failed
// scan are returned.
func (j *Job) RunOnce(ctx context.Context, hoursAhead int) (notify.Tally, error) {
	ctx, span := remindersTracer.Start(ctx, "jobs.reminders")
	defer span.End()
	span.SetAttributes(attribute.Int("scheduler.hours_ahead", hoursAhead))

	var tally notify.Tally
	msgType, err := MessageTypeFor(hoursAhead)
	if err != nil {
		return tally, err
	}
	if j.scopes == nil || j.notifier == nil {
		return tally, fmt.Errorf("reminders: job not configured")
	}
	window := j.Window(j.now(), hoursAhead)
	appts, err := j.scopes.Jobs().ListConfirmedStartingIn(ctx, window)
	if err != nil {
		span.RecordError(err)
		j.metrics.ObserveJobRun(JobName, "error")
		return tally, fmt.Errorf("reminders: list confirmed: %w", err)
	}
	span.SetAttributes(attribute.Int("scheduler.appointments", len(appts)))

	for _, appt := range appts {
		if err := ctx.Err(); err != nil {
			j.metrics.ObserveJobRun(JobName, "canceled")
			return tally, err
		}
		res := j.remind(ctx, appt, msgType)
		tally.Add(res)
		j.metrics.ObserveJobMessage(JobName, string(res.Outcome))
	}

	j.metrics.ObserveJobRun(JobName, "ok")
	j.logger.Info("reminder run complete",
		"job", JobName,
		"template", msgType,
		"appointments", len(appts),
		"sent", tally.Sent,
		"skipped", tally.Skipped,
		"failed", tally.Failed,
	)
	return tally, nil
}

func (j *Job) remind(ctx context.Context, appt scheduling.Appointment, msgType scheduling.MessageType) notify.Result {
	store := j.scopes.Tenant(appt.TenantID)
	log := j.logger.With("job", JobName, "tenant_id", appt.TenantID, "appointment_id", appt.ID, "template", msgType)

	patient, err := store.GetPatient(ctx, appt.PatientID)
	if err != nil {
		log.Error("reminders: load patient", "patient_id", appt.PatientID, "error", err)
		return notify.Result{Outcome: notify.OutcomeFailed, Err: err}
	}
	loc, err := store.GetLocation(ctx, appt.LocationID)
	if err != nil {
		log.Error("reminders: load location", "location_id", appt.LocationID, "error", err)
		return notify.Result{Outcome: notify.OutcomeFailed, Err: err}
	}
	res := j.notifier.Notify(ctx, store, notify.Request{
		Patient:       *patient,
		AppointmentID: appt.ID,
		Type:          msgType,
		Variables:     notify.AppointmentVariables(patient.Name, appt.Start, loc),
	})
	if res.Outcome == notify.OutcomeFailed {
		log.Warn("reminder not delivered", "patient_id", patient.ID, "error", res.Err)
	}
	return res
}
