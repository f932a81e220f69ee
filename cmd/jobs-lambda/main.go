package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// dispatcher is satisfied by *jobs.Dispatcher.
type dispatcher interface {
	Dispatch(ctx context.Context, t jobs.Trigger) (*jobs.Run, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	stores := bootstrap.BuildStores(ctx, cfg, logger)

	awsClients, err := mainconfig.Load(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	ses, ledger := awsClients.JobDependencies(cfg, logger)

	notifier := bootstrap.BuildNotifier(cfg, stores.Credentials, ses, nil, logger)
	background := bootstrap.BuildJobs(cfg, stores.Scopes, notifier, ledger, nil, logger)

	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (*jobs.Run, error) {
		return handle(ctx, background.Dispatcher, evt)
	})
}

// handle runs the job named in a scheduled event's detail, for example
// {"job":"reminders","hours_ahead":24}.
func handle(ctx context.Context, d dispatcher, evt events.CloudWatchEvent) (*jobs.Run, error) {
	t, err := jobs.ParseTrigger(evt.Detail)
	if err != nil {
		return nil, fmt.Errorf("jobs-lambda: event %s: %w", evt.ID, err)
	}
	t.Source = jobs.SourceLambda
	return d.Dispatch(ctx, t)
}
