package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/middleware"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/swagger"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// maxBodyBytes bounds request bodies; Stripe events fit comfortably
const maxBodyBytes = 1 << 20

// Config holds the services the API is built from
type Config struct {
	Orgs    orgs.Service
	Usage   usage.Service
	Billing billing.Service
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server is the onramp HTTP API
type Server struct {
	router    *mux.Router
	handler   http.Handler
	orgs      orgs.Service
	usage     usage.Service
	billing   billing.Service
	admission *middleware.AdmissionMiddleware
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewServer creates a new API server with all routes registered
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}

	s := &Server{
		router:    mux.NewRouter(),
		orgs:      cfg.Orgs,
		usage:     cfg.Usage,
		billing:   cfg.Billing,
		admission: middleware.NewAdmissionMiddleware(cfg.Orgs, cfg.Metrics),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})

	// Limits and usage
	s.router.HandleFunc("/orgs/{org_id}/usage-limits", s.getUsageLimits).Methods("GET")
	s.router.HandleFunc("/users/{user_id}/usage-summary", s.getUsageSummary).Methods("GET")
	s.router.HandleFunc("/users/{user_id}/billing-usage", s.getBillingUsage).Methods("GET")
	s.router.HandleFunc("/sessions/{session_id}/usage", s.recordUsage).Methods("POST")

	// Agents
	s.router.Handle("/sites/{site_id}/agents",
		s.admission.RequireAgentSlot(middleware.OrgFromSite(s.orgs, "site_id"))(http.HandlerFunc(s.createAgent))).
		Methods("POST")
	s.router.HandleFunc("/sites/{site_id}/agents", s.listAgents).Methods("GET")
	s.router.HandleFunc("/agents/{agent_id}", s.getAgent).Methods("GET")
	s.router.HandleFunc("/agents/{agent_id}", s.deleteAgent).Methods("DELETE")
	s.router.HandleFunc("/agents/{agent_id}/settings", s.updateAgentSettings).Methods("PUT")
	s.router.HandleFunc("/agents/{agent_id}/publish", s.setAgentPublished).Methods("PUT")

	// Onboarding sessions
	s.router.Handle("/agents/{agent_id}/sessions",
		s.admission.RequireSessionSlot(middleware.OrgFromAgent(s.orgs, "agent_id"))(http.HandlerFunc(s.createSession))).
		Methods("POST")
	s.router.HandleFunc("/sessions/{session_id}", s.getSession).Methods("GET")
	s.router.HandleFunc("/sessions/{session_id}", s.deleteSession).Methods("DELETE")
	s.router.HandleFunc("/sessions/{session_id}/status", s.updateSessionStatus).Methods("PUT")

	// Billing
	s.router.HandleFunc("/billing/webhook", s.handleWebhook).Methods("POST")

	// API documentation
	swagger.NewSwaggerHandlers().RegisterRoutes(s.router)
}

// Router exposes the route table, e.g. for walking registered routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
