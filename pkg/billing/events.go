package billing

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

// PostgresEventStore records processed webhook deliveries in billing_events
type PostgresEventStore struct {
	db *sql.DB
}

// NewPostgresEventStore creates a new PostgresEventStore
func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Seen reports whether the event was already processed
func (s *PostgresEventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM billing_events WHERE event_id = $1)`, eventID).Scan(&seen)
	if err != nil {
		return false, apperr.Dependency("database", "check billing event", err)
	}
	return seen, nil
}

// Record marks the event processed. Recording twice is a no-op.
func (s *PostgresEventStore) Record(ctx context.Context, eventID, eventType string) error {
	query := `
		INSERT INTO billing_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, eventID, eventType); err != nil {
		return apperr.Dependency("database", "record billing event", err)
	}
	return nil
}
