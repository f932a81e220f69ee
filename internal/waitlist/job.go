package waitlist

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

var waitlistTracer = otel.Tracer("scheduler.internal.waitlist")

// JobName labels metrics and the run ledger.
const JobName = "waitlist"

// Notifier sends a patient message guarded by the message log.
type Notifier interface {
	Notify(ctx context.Context, store scheduling.TenantStore, req notify.Request) notify.Result
}

// Job offers freshly canceled slots to the location's waitlist. Re-running
// it is safe: each (appointment, patient) pair is offered at most once.
type Job struct {
	scopes    scheduling.Scopes
	notifier  Notifier
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	lookback  time.Duration
	horizon   time.Duration
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

// NewJob creates a waitlist job with a 5 minute lookback, a 48 hour horizon
// and up to 10 candidates per canceled appointment.
func NewJob(scopes scheduling.Scopes, notifier Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Job {
	if logger == nil {
		logger = logging.Default()
	}
	return &Job{
		scopes:    scopes,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		lookback:  5 * time.Minute,
		horizon:   48 * time.Hour,
		batchSize: 10,
		interval:  time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *Job) WithLookback(d time.Duration) *Job {
	if d > 0 {
		j.lookback = d
	}
	return j
}

func (j *Job) WithHorizon(d time.Duration) *Job {
	if d > 0 {
		j.horizon = d
	}
	return j
}

func (j *Job) WithBatchSize(n int) *Job {
	if n > 0 {
		j.batchSize = n
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

// Run polls until ctx is done.
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
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("waitlist run failed", "error", err)
	}
}

// RunOnce performs a single pass at the injected "now". Only a failure to
// list canceled appointments is returned; per-candidate failures are logged
// and counted.
func (j *Job) RunOnce(ctx context.Context) (notify.Tally, error) {
	ctx, span := waitlistTracer.Start(ctx, "jobs.waitlist")
	defer span.End()

	var tally notify.Tally
	if j.scopes == nil || j.notifier == nil {
		return tally, fmt.Errorf("waitlist: job not configured")
	}
	now := j.now()
	window := timewindow.Interval{Start: now, End: now.Add(j.horizon)}
	canceled, err := j.scopes.Jobs().ListRecentlyCanceled(ctx, now.Add(-j.lookback), window)
	if err != nil {
		span.RecordError(err)
		j.metrics.ObserveJobRun(JobName, "error")
		return tally, fmt.Errorf("waitlist: list canceled: %w", err)
	}
	span.SetAttributes(attribute.Int("scheduler.canceled", len(canceled)))

	for _, appt := range canceled {
		if err := ctx.Err(); err != nil {
			j.metrics.ObserveJobRun(JobName, "canceled")
			return tally, err
		}
		j.offer(ctx, appt, &tally)
	}

	j.metrics.ObserveJobRun(JobName, "ok")
	j.logger.Info("waitlist run complete",
		"job", JobName,
		"canceled", len(canceled),
		"sent", tally.Sent,
		"skipped", tally.Skipped,
		"failed", tally.Failed,
	)
	return tally, nil
}

func (j *Job) offer(ctx context.Context, appt scheduling.Appointment, tally *notify.Tally) {
	store := j.scopes.Tenant(appt.TenantID)
	log := j.logger.With("job", JobName, "tenant_id", appt.TenantID, "appointment_id", appt.ID, "location_id", appt.LocationID)

	loc, err := store.GetLocation(ctx, appt.LocationID)
	if err != nil {
		log.Error("waitlist: load location", "error", err)
		return
	}
	entries, err := store.ListActiveWaitlist(ctx, appt.LocationID, j.batchSize)
	if err != nil {
		log.Error("waitlist: list entries", "error", err)
		return
	}

	for _, entry := range entries {
		patient, err := store.GetPatient(ctx, entry.PatientID)
		if err != nil {
			log.Error("waitlist: load patient", "patient_id", entry.PatientID, "error", err)
			tally.Failed++
			j.metrics.ObserveJobMessage(JobName, string(notify.OutcomeFailed))
			continue
		}
		res := j.notifier.Notify(ctx, store, notify.Request{
			Patient:       *patient,
			AppointmentID: appt.ID,
			Type:          scheduling.MessageWaitlistOffer,
			Variables:     notify.AppointmentVariables(patient.Name, appt.Start, loc),
		})
		tally.Add(res)
		j.metrics.ObserveJobMessage(JobName, string(res.Outcome))
		if res.Outcome == notify.OutcomeFailed {
			log.Warn("waitlist offer not delivered", "patient_id", patient.ID, "priority", entry.Priority, "error", res.Err)
		}
	}
}
