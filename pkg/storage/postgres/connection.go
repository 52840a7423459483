package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/onramp/pkg/observability"
)

// ConnectionManager manages the PostgreSQL primary and optional read replicas.
// Admission counts and every write use Primary; Replica serves reads that
// tolerate lag, such as usage summaries.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  atomic.Uint32
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func (c ConnectionConfig) open(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(c.MinConns)
	db.SetConnMaxLifetime(c.MaxLifetime)
	db.SetConnMaxIdleTime(c.MaxIdleTime)
	return db, nil
}

func (c ConnectionConfig) replicaMaxConns() int {
	n := c.MaxConns / 2
	if n < 2 {
		n = 2
	}
	return n
}

// NewConnectionManager connects to the primary and any configured replicas.
// A primary failure is fatal; replica failures are logged and skipped.
func NewConnectionManager(ctx context.Context, config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if config.PrimaryURL == "" {
		return nil, errors.New("primary database URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	primary, err := config.open(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := primary.PingContext(pingCtx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	cm := &ConnectionManager{primary: primary, config: config, logger: logger}

	for i, replicaURL := range config.ReplicaURLs {
		replica, err := config.open(replicaURL, config.replicaMaxConns())
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Failed to open replica")
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		err = replica.PingContext(pingCtx)
		cancel()
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Failed to ping replica")
			replica.Close()
			continue
		}

		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Connection manager initialized")
	return cm, nil
}

// NewConnectionManagerFromDB wraps already opened handles
func NewConnectionManagerFromDB(logger *observability.Logger, primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{primary: primary, replicas: replicas, logger: logger}
}

// Primary returns the primary database connection
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection,
// or the primary when no replica is available
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := cm.current.Add(1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// PingContext checks the primary. Replica loss only degrades reads, so it is not reported here.
func (cm *ConnectionManager) PingContext(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}
	return nil
}

// ReplicaCount returns the number of healthy replicas currently in rotation
func (cm *ConnectionManager) ReplicaCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.replicas)
}

// ReportStats publishes pool statistics for every connection
func (cm *ConnectionManager) ReportStats(metrics *observability.Metrics) {
	metrics.ObserveDBStats("primary", cm.primary.Stats())

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for i, replica := range cm.replicas {
		metrics.ObserveDBStats(fmt.Sprintf("replica-%d", i), replica.Stats())
	}
}

// RemoveUnhealthyReplicas drops replicas that fail a ping and returns how many were removed
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}

	cm.replicas = healthy
	return removed
}

// StartMaintenance periodically evicts unhealthy replicas and publishes pool
// statistics until ctx is cancelled
func (cm *ConnectionManager) StartMaintenance(ctx context.Context, interval time.Duration, metrics *observability.Metrics) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer observability.RecoverPanic(cm.logger, "database maintenance")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				if removed := cm.RemoveUnhealthyReplicas(checkCtx); removed > 0 {
					cm.logger.WithField("removed", removed).Warn("Removed unhealthy replicas")
				}
				cancel()
				cm.ReportStats(metrics)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLs string) []string {
	if replicaURLs == "" {
		return nil
	}

	parts := strings.Split(replicaURLs, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
