// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health probes and graceful shutdown for the onramp
// binaries.
//
// # Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("org_id", orgID).Info("agent created")
//
// Request handlers obtain a logger carrying request and organization
// identifiers with FromContext.
//
// # Metrics
//
// NewMetrics registers every collector on the given registry. A nil *Metrics
// records nothing, so components accept it as an optional dependency:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.ObserveAdmission("agents", observability.OutcomeRefused)
//
// # Health
//
//	checker := observability.NewHealthChecker(version, 5*time.Second)
//	checker.AddPinger("database", true, db)
//	observability.RegisterHealthRoutes(mux, checker)
package observability
