package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the counters below
const (
	OutcomeAllowed = "allowed"
	OutcomeRefused = "refused"
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission and billing metrics
	AdmissionDecisionsTotal *prometheus.CounterVec
	EnrichmentFailuresTotal *prometheus.CounterVec
	ProviderCallDuration    *prometheus.HistogramVec
	WebhookEventsTotal      *prometheus.CounterVec
	UsageSecondsTotal       prometheus.Counter

	// Reconciler metrics
	ReconcilerRunsTotal           *prometheus.CounterVec
	ReconcilerTenantFailuresTotal *prometheus.CounterVec
	ReconcilerRunDuration         *prometheus.HistogramVec

	// Database pool metrics, labeled by role (primary, replica-N)
	DBConnectionsOpen  *prometheus.GaugeVec
	DBConnectionsInUse *prometheus.GaugeVec
	DBConnectionsIdle  *prometheus.GaugeVec
	DBWaitCount        *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onramp_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onramp_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AdmissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onramp_admission_decisions_total",
				Help: "Admission decisions by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		EnrichmentFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onramp_billing_enrichment_failures_total",
				Help: "Billing summary enrichment steps that failed and were defaulted",
			},
			[]string{"step"},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onramp_payment_provider_call_duration_seconds",
				Help:    "Payment provider call duration in seconds, retries included",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "outcome"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onramp_billing_webhook_events_total",
				Help: "Billing webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		UsageSecondsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "onramp_usage_seconds_recorded_total",
				Help: "Billable session seconds appended to usage logs",
			},
		),
		ReconcilerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onramp_reconciler_runs_total",
				Help: "Reconciler job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		ReconcilerTenantFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onramp_reconciler_tenant_failures_total",
				Help: "Per-tenant failures inside reconciler runs",
			},
			[]string{"job"},
		),
		ReconcilerRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onramp_reconciler_run_duration_seconds",
				Help:    "Reconciler job duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		),
		DBConnectionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "onramp_db_connections_open",
				Help: "Open database connections",
			},
			[]string{"role"},
		),
		DBConnectionsInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "onramp_db_connections_in_use",
				Help: "Database connections currently in use",
			},
			[]string{"role"},
		),
		DBConnectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "onramp_db_connections_idle",
				Help: "Idle database connections",
			},
			[]string{"role"},
		),
		DBWaitCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "onramp_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
			[]string{"role"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AdmissionDecisionsTotal,
		m.EnrichmentFailuresTotal,
		m.ProviderCallDuration,
		m.WebhookEventsTotal,
		m.UsageSecondsTotal,
		m.ReconcilerRunsTotal,
		m.ReconcilerTenantFailuresTotal,
		m.ReconcilerRunDuration,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// ObserveAdmission counts one admission decision
func (m *Metrics) ObserveAdmission(resource, outcome string) {
	if m == nil {
		return
	}
	m.AdmissionDecisionsTotal.WithLabelValues(resource, outcome).Inc()
}

// ObserveEnrichmentFailure counts a defaulted billing enrichment step
func (m *Metrics) ObserveEnrichmentFailure(step string) {
	if m == nil {
		return
	}
	m.EnrichmentFailuresTotal.WithLabelValues(step).Inc()
}

// ObserveProviderCall records the duration of one payment provider operation
func (m *Metrics) ObserveProviderCall(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.WithLabelValues(operation, outcomeOf(err)).Observe(d.Seconds())
}

// ObserveWebhook counts a webhook delivery
func (m *Metrics) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// ObserveUsage adds recorded session seconds
func (m *Metrics) ObserveUsage(seconds int64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.UsageSecondsTotal.Add(float64(seconds))
}

// ObserveReconcilerRun records one reconciler job run and its tenant failures
func (m *Metrics) ObserveReconcilerRun(job string, failures int, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcilerRunsTotal.WithLabelValues(job, outcomeOf(err)).Inc()
	m.ReconcilerRunDuration.WithLabelValues(job).Observe(d.Seconds())
	if failures > 0 {
		m.ReconcilerTenantFailuresTotal.WithLabelValues(job).Add(float64(failures))
	}
}

// ObserveDBStats publishes connection pool statistics for one pool
func (m *Metrics) ObserveDBStats(role string, stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.WithLabelValues(role).Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.WithLabelValues(role).Set(float64(stats.InUse))
	m.DBConnectionsIdle.WithLabelValues(role).Set(float64(stats.Idle))
	m.DBWaitCount.WithLabelValues(role).Set(float64(stats.WaitCount))
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux route template so path parameters do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must run inside the mux router so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
