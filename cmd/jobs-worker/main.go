package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.JobTriggerQueueURL == "" && !cfg.JobLocalTicker {
		logger.Error("jobs worker requires JOB_TRIGGER_QUEUE_URL or JOB_LOCAL_TICKER")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := bootstrap.BuildStores(ctx, cfg, logger)
	defer stores.Close()

	awsClients, err := mainconfig.Load(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	ses, ledger := awsClients.JobDependencies(cfg, logger)

	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	notifier := bootstrap.BuildNotifier(cfg, stores.Credentials, ses, m, logger)
	background := bootstrap.BuildJobs(cfg, stores.Scopes, notifier, ledger, m, logger)

	var source *jobs.SQSTriggerSource
	if cfg.JobTriggerQueueURL != "" {
		source = jobs.NewSQSTriggerSource(awsClients.SQS, cfg.JobTriggerQueueURL, background.Dispatcher, logger)
		source.Start(ctx)
		logger.Info("consuming job triggers", "queue_url", cfg.JobTriggerQueueURL)
	}

	done := make(chan struct{}, 2)
	if cfg.JobLocalTicker {
		logger.Info("running job ticker", "interval", cfg.JobPollInterval)
		go func() {
			background.Reminders.Run(ctx)
			done <- struct{}{}
		}()
		go func() {
			background.Waitlist.Run(ctx)
			done <- struct{}{}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("jobs worker shutting down")
	cancel()

	if source != nil {
		source.Wait()
	}
	if cfg.JobLocalTicker {
		<-done
		<-done
	}
	logger.Info("jobs worker stopped")
}
