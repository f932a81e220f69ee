package bootstrap

import (
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/reminders"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/waitlist"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Jobs holds the two background jobs and the dispatcher that fronts them.
type Jobs struct {
	Reminders  *reminders.Job
	Waitlist   *waitlist.Job
	Dispatcher *jobs.Dispatcher
}

// BuildJobs configures both jobs from cfg. ledger may be nil.
func BuildJobs(
	cfg *appconfig.Config,
	scopes scheduling.Scopes,
	notifier *notify.Service,
	ledger jobs.RunRecorder,
	m *metrics.SchedulingMetrics,
	logger *logging.Logger,
) *Jobs {
	if logger == nil {
		logger = logging.Default()
	}
	rem := reminders.NewJob(scopes, notifier, m, logger).
		WithTolerance(cfg.ReminderTolerance).
		WithInterval(cfg.JobPollInterval)
	wl := waitlist.NewJob(scopes, notifier, m, logger).
		WithLookback(cfg.WaitlistLookback).
		WithHorizon(cfg.WaitlistHorizon).
		WithBatchSize(cfg.WaitlistBatchSize).
		WithInterval(cfg.JobPollInterval)
	return &Jobs{
		Reminders:  rem,
		Waitlist:   wl,
		Dispatcher: jobs.NewDispatcher(rem, wl, ledger, logger),
	}
}
