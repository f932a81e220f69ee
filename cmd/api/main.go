package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/admin"
	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/availability"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/waitlist"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := bootstrap.BuildStores(ctx, cfg, logger)
	defer stores.Close()

	metricsHandler, schedMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	tenants := bootstrap.BuildTenantCache(redisClient, stores.Tenants, cfg, logger)

	awsClients, err := mainconfig.Load(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	ses, ledger := awsClients.JobDependencies(cfg, logger)

	notifier := bootstrap.BuildNotifier(cfg, stores.Credentials, ses, schedMetrics, logger)
	background := bootstrap.BuildJobs(cfg, stores.Scopes, notifier, ledger, schedMetrics, logger)

	bookings := appointments.NewService(notifier, schedMetrics, logger).
		WithDefaultCountryCode(cfg.DefaultCountryCode)
	waitlistService := waitlist.NewService(logger).
		WithDefaultCountryCode(cfg.DefaultCountryCode)
	slotService := availability.NewService(logger, schedMetrics).
		WithMaxScanDays(cfg.AvailabilityScanDays)

	routerCfg := &router.Config{
		Logger:             logger,
		Availability:       availability.NewHandler(slotService, stores.Scopes, cfg.AvailabilityScanDays, logger),
		Appointments:       appointments.NewHandler(bookings, stores.Scopes, logger),
		Waitlist:           waitlist.NewHandler(waitlistService, stores.Scopes, logger),
		Jobs:               jobs.NewHandler(background.Dispatcher, cfg.JobTriggerSecret, logger),
		TenantsBySlug:      tenants,
		ChannelAuthSecret:  cfg.ChannelJWTSecret,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PublicRateLimitRPS: cfg.PublicRateLimitRPS,
		PublicRateBurst:    cfg.PublicRateLimitBurst,
	}
	if stores.Admin != nil {
		routerCfg.Admin = admin.NewHandler(stores.Admin, logger)
	}
	if cfg.ChannelJWTSecret == "" {
		logger.Warn("CHANNEL_JWT_SECRET not set; internal booking routes will reject every request")
	}
	r := router.New(routerCfg)

	if cfg.JobLocalTicker {
		logger.Info("running background jobs in-process", "interval", cfg.JobPollInterval)
		go background.Reminders.Run(ctx)
		go background.Waitlist.Run(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupMetrics registers the scheduling collectors on a private registry
// alongside the Go runtime and process collectors.
func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewSchedulingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), m
}
