package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/config"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/storage/postgres"
	"github.com/platinummonkey/onramp/pkg/tiers"
	"github.com/platinummonkey/onramp/pkg/usage"
)

var (
	runOnce = flag.Bool("run-once", false, "Run the selected job once and exit")
	job     = flag.String("job", "all", "Job to run with --run-once: report-usage, sync-tiers or all")
)

// jobTimeout bounds a single scheduled run
const jobTimeout = 30 * time.Minute

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := setupLogger(cfg.Observability.LogLevel.String())
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "onramp-reconciler")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer otelProviders.Shutdown(context.Background())

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	conns, err := postgres.NewConnectionManager(ctx, cfg.Database.Connection(), logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()

	table := tiers.DefaultTable()
	if cfg.Tiers.File != "" {
		if table, err = tiers.LoadTable(cfg.Tiers.File); err != nil {
			log.Fatalf("Failed to load tier table: %v", err)
		}
	}

	orgService := orgs.NewPostgresService(conns.Primary(), table)
	usageService := usage.NewPostgresService(conns.Primary(), conns.Replica())
	provider := billing.NewStripeProvider(billing.StripeOptions{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		BaseURL:       cfg.Stripe.BaseURL,
		HTTPClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		CallTimeout:   cfg.Stripe.CallTimeout,
		MaxRetries:    cfg.Stripe.MaxRetries,
		PriceCacheTTL: cfg.Stripe.PriceCacheTTL,
		PriceCacheMax: cfg.Stripe.PriceCacheMax,
		Metrics:       metrics,
	})
	reconciler := billing.NewReconciler(orgService, usageService, provider, billing.NewPostgresEventStore(conns.Primary()), billing.Options{
		PriceTiers:  cfg.Stripe.PriceTiers,
		Concurrency:    cfg.Reconciler.Concurrency,
		SettleInterval: cfg.Reconciler.SettleInterval,
		Logger:         logger,
		Metrics:        metrics,
	})

	jobs := map[string]func(context.Context) error{
		billing.JobReportUsage: reconciler.ReportUsage,
		billing.JobSyncTiers:   reconciler.SyncTiers,
	}

	if *runOnce {
		for name, fn := range jobs {
			if *job != "all" && *job != name {
				continue
			}
			if err := runJob(log, name, fn); err != nil {
				log.Fatalf("Job %s failed: %v", name, err)
			}
		}
		return
	}

	c, entries, err := newScheduler(log, map[string]string{
		billing.JobReportUsage: cfg.Reconciler.UsageReportSchedule,
		billing.JobSyncTiers:   cfg.Reconciler.TierSyncSchedule,
	}, jobs)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker("reconciler", 5*time.Second)
	checker.AddPinger("postgres", true, conns)
	observability.RegisterHealthRoutes(healthMux, checker)
	healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Health server failed: %v", err)
		}
	}()

	c.Start()
	log.Info("Onramp reconciler started")

	if cfg.Reconciler.RunOnStart {
		runStartupJobs(c, entries)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down gracefully...")

	stopped := c.Stop()
	<-stopped.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Health server shutdown failed: %v", err)
	}
	log.Info("Reconciler stopped")
}

// newScheduler registers each job on its schedule. A job whose previous run
// has not finished skips its turn.
func newScheduler(log *logrus.Logger, schedules map[string]string, jobs map[string]func(context.Context) error) (*cron.Cron, []cron.EntryID, error) {
	cronLogger := cron.VerbosePrintfLogger(log)
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	entries := make([]cron.EntryID, 0, len(schedules))
	for name, schedule := range schedules {
		fn, ok := jobs[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown job %q", name)
		}
		id, err := c.AddFunc(schedule, func() { _ = runJob(log, name, fn) })
		if err != nil {
			return nil, nil, fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		entries = append(entries, id)
		log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("Scheduled job")
	}
	return c, entries, nil
}

// runStartupJobs starts each entry once without waiting for its schedule.
// Runs go through the entry's wrapped job so a scheduled tick that arrives
// mid-run is skipped.
func runStartupJobs(c *cron.Cron, entries []cron.EntryID) {
	for _, id := range entries {
		go c.Entry(id).WrappedJob.Run()
	}
}

func runJob(log *logrus.Logger, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	entry := log.WithField("job", name)
	entry.Info("Starting job")
	if err := fn(ctx); err != nil {
		entry.WithError(err).WithField("duration", time.Since(start)).Error("Job failed")
		return err
	}
	entry.WithField("duration", time.Since(start)).Info("Job completed")
	return nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
