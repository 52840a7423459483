package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger is satisfied by *sql.DB and the storage connection manager
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CheckFunc reports the health of one dependency
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name     string
	critical bool
	fn       CheckFunc
}

// HealthChecker aggregates dependency checks for the readiness probe
type HealthChecker struct {
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks []namedCheck
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a health checker. timeout bounds each readiness probe.
func NewHealthChecker(version string, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{version: version, timeout: timeout}
}

// AddCheck registers a dependency. A failing critical check makes the service
// unhealthy; a failing non-critical one only degrades it.
func (h *HealthChecker) AddCheck(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, critical: critical, fn: fn})
}

// AddPinger registers a Pinger as a check
func (h *HealthChecker) AddPinger(name string, critical bool, p Pinger) {
	h.AddCheck(name, critical, p.PingContext)
}

// Check runs every registered check concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]namedCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]DependencyStatus, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c namedCheck) {
			defer wg.Done()
			start := time.Now()
			err := c.fn(ctx)
			results[i] = DependencyStatus{
				Status:    StatusHealthy,
				LatencyMS: time.Since(start).Milliseconds(),
				Timestamp: time.Now(),
			}
			if err != nil {
				results[i].Status = StatusUnhealthy
				results[i].Message = err.Error()
			}
		}(i, c)
	}
	wg.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(checks)),
	}
	for i, c := range checks {
		status.Dependencies[c.name] = results[i]
		if results[i].Status != StatusUnhealthy {
			continue
		}
		if c.critical {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

// Names returns the registered check names in sorted order
func (h *HealthChecker) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

// Liveness reports that the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]any{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns 503 when a critical dependency is down, 200 otherwise
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
