package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/onramp/pkg/api"
	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/config"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/storage/postgres"
	"github.com/platinummonkey/onramp/pkg/tiers"
	"github.com/platinummonkey/onramp/pkg/usage"
)

var version = "dev"

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	if err := run(*migrateOnly); err != nil {
		fmt.Fprintf(os.Stderr, "onramp: %v\n", err)
		os.Exit(1)
	}
}

func run(migrateOnly bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName).
		WithField("version", version)

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	conns, err := postgres.NewConnectionManager(ctx, cfg.Database.Connection(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart || migrateOnly {
		if err := postgres.Migrate(ctx, conns.Primary(), logger); err != nil {
			conns.Close()
			return err
		}
		if migrateOnly {
			return conns.Close()
		}
	}

	table := tiers.DefaultTable()
	if cfg.Tiers.File != "" {
		if table, err = tiers.LoadTable(cfg.Tiers.File); err != nil {
			conns.Close()
			return err
		}
		logger.WithField("file", cfg.Tiers.File).Info("Loaded tier limits")
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
		Concurrency: cfg.Reconciler.Concurrency,
		Logger:      logger,
		Metrics:     metrics,
	})

	server := api.NewServer(api.Config{
		Orgs:    orgService,
		Usage:   usageService,
		Billing: reconciler,
		Logger:  logger,
		Metrics: metrics,
	})

	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	conns.StartMaintenance(maintenanceCtx, 30*time.Second, metrics)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server, "onramp"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	checker := observability.NewHealthChecker(version, 5*time.Second)
	checker.AddPinger("postgres", true, conns)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)
	shutdown.RegisterShutdownFunc("maintenance", func(context.Context) error {
		stopMaintenance()
		return nil
	})
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		return conns.Close()
	})
	shutdown.RegisterShutdownFunc("otel", otelProviders.Shutdown)

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			defer observability.RecoverPanic(logger, "http server")
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForSignal(waitCtx)
}
