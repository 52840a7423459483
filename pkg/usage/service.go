package usage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

// foreignKeyViolation is the PostgreSQL SQLSTATE for a failed FK check
const foreignKeyViolation = "23503"

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresService creates a usage store. Writes and report state use db;
// summaries read from reader, which may be a replica. A nil reader means db.
func NewPostgresService(db, reader *sql.DB) *PostgresService {
	if reader == nil {
		reader = db
	}
	return &PostgresService{db: db, reader: reader}
}

// RecordUsage appends a usage log for a session belonging to the user's organization
func (s *PostgresService) RecordUsage(ctx context.Context, userID, sessionID, durationSeconds, messageCount int64) (*UsageLog, error) {
	if durationSeconds < 0 || messageCount < 0 {
		return nil, fmt.Errorf("%w: duration and message count must not be negative", ErrInvalidUsage)
	}

	// The join keeps tenants isolated: a session outside the user's organization matches nothing.
	query := `
		INSERT INTO usage_logs (user_id, session_id, duration_seconds, message_count)
		SELECT u.id, os.id, $3, $4
		FROM users u
		JOIN sites st ON st.organization_id = u.organization_id
		JOIN agents a ON a.site_id = st.id
		JOIN onboarding_sessions os ON os.agent_id = a.id
		WHERE u.id = $1 AND os.id = $2
		RETURNING id, created_at
	`
	log := &UsageLog{
		UserID:          userID,
		SessionID:       sessionID,
		DurationSeconds: durationSeconds,
		MessageCount:    messageCount,
	}
	err := s.db.QueryRowContext(ctx, query, userID, sessionID, durationSeconds, messageCount).
		Scan(&log.ID, &log.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missingOwner(ctx, userID, sessionID)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		// user or session deleted concurrently
		return nil, s.missingOwner(ctx, userID, sessionID)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "record usage", err)
	}
	return log, nil
}

// missingOwner works out which side of RecordUsage's join was absent
func (s *PostgresService) missingOwner(ctx context.Context, userID, sessionID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return apperr.Dependency("database", "check user", err)
	}
	if !exists {
		return apperr.NotFound("user", userID)
	}
	return apperr.NotFound("session", sessionID)
}

// GetUsageSummary aggregates all of a user's logs by UTC day. Unknown users
// yield NotFound; users without activity yield zero totals.
func (s *PostgresService) GetUsageSummary(ctx context.Context, userID int64) (*UsageStats, error) {
	var exists bool
	var sessions int
	query := `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1),
		       (SELECT COUNT(DISTINCT session_id) FROM usage_logs WHERE user_id = $1)
	`
	if err := s.reader.QueryRowContext(ctx, query, userID).Scan(&exists, &sessions); err != nil {
		return nil, apperr.Dependency("database", "count usage sessions", err)
	}
	if !exists {
		return nil, apperr.NotFound("user", userID)
	}

	dailyQuery := `
		SELECT to_char((created_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day,
		       SUM(duration_seconds), SUM(message_count)
		FROM usage_logs
		WHERE user_id = $1
		GROUP BY day
		ORDER BY day
	`
	rows, err := s.reader.QueryContext(ctx, dailyQuery, userID)
	if err != nil {
		return nil, apperr.Dependency("database", "aggregate usage", err)
	}
	defer rows.Close()

	daily := []DailyUsage{}
	for rows.Next() {
		var day DailyUsage
		if err := rows.Scan(&day.Date, &day.Seconds, &day.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		daily = append(daily, day)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency("database", "aggregate usage", err)
	}

	return buildStats(daily, sessions), nil
}

// SecondsSince sums a user's usage recorded at or after since
func (s *PostgresService) SecondsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(duration_seconds), 0)
		FROM usage_logs
		WHERE user_id = $1 AND created_at >= $2
	`
	var seconds int64
	if err := s.reader.QueryRowContext(ctx, query, userID, since).Scan(&seconds); err != nil {
		return 0, apperr.Dependency("database", "sum usage", err)
	}
	return seconds, nil
}

// SecondsBetween sums usage in (after, through]. It reads the primary so a
// report never skips logs a replica has not seen yet.
func (s *PostgresService) SecondsBetween(ctx context.Context, userID int64, after, through time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(duration_seconds), 0)
		FROM usage_logs
		WHERE user_id = $1 AND created_at > $2 AND created_at <= $3
	`
	var seconds int64
	if err := s.db.QueryRowContext(ctx, query, userID, after, through).Scan(&seconds); err != nil {
		return 0, apperr.Dependency("database", "sum usage", err)
	}
	return seconds, nil
}

// reportLockKey names a user's report lock. It is hashed into the bigint
// advisory lock space so it cannot collide with organization admission locks
// keyed by raw IDs.
func reportLockKey(userID int64) string {
	return fmt.Sprintf("onramp.usage_report:%d", userID)
}

// ReportCutoff reads the cutoff from the database clock, the same clock that
// stamps usage_logs.created_at.
func (s *PostgresService) ReportCutoff(ctx context.Context, settle time.Duration) (time.Time, error) {
	var cutoff time.Time
	err := s.db.QueryRowContext(ctx, `SELECT NOW() - make_interval(secs => $1)`, settle.Seconds()).Scan(&cutoff)
	if err != nil {
		return time.Time{}, apperr.Dependency("database", "read report cutoff", err)
	}
	return cutoff.UTC(), nil
}

// LockReports takes a session-level advisory lock on a dedicated connection.
// The lock lives as long as that connection, so a crashed reconciler never
// leaves it held.
func (s *PostgresService) LockReports(ctx context.Context, userID int64) (func(), bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, apperr.Dependency("database", "lock usage report", err)
	}

	key := reportLockKey(userID)
	var acquired bool
	err = conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, false, apperr.Dependency("database", "lock usage report", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			// discard the session rather than pool a connection still holding the lock
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
	}
	return release, true, nil
}

// GetReportState returns the user's report state, or nil if usage was never reported
func (s *PostgresService) GetReportState(ctx context.Context, userID int64) (*ReportState, error) {
	query := `
		SELECT user_id, subscription_item_id, period_start, window_start,
		       reported_minutes, reported_through,
		       pending_minutes, pending_through, pending_key
		FROM usage_report_state
		WHERE user_id = $1
	`
	state := &ReportState{}
	var pendingMinutes sql.NullInt64
	var pendingThrough sql.NullTime
	var pendingKey sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&state.UserID, &state.SubscriptionItemID, &state.PeriodStart, &state.WindowStart,
		&state.ReportedMinutes, &state.ReportedThrough,
		&pendingMinutes, &pendingThrough, &pendingKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get report state", err)
	}
	if pendingKey.Valid {
		state.Pending = &PendingReport{
			Minutes: pendingMinutes.Int64,
			Through: pendingThrough.Time,
			Key:     pendingKey.String,
		}
	}
	return state, nil
}

// SaveReportState replaces the user's report state
func (s *PostgresService) SaveReportState(ctx context.Context, state ReportState) error {
	query := `
		INSERT INTO usage_report_state (
			user_id, subscription_item_id, period_start, window_start,
			reported_minutes, reported_through,
			pending_minutes, pending_through, pending_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE
		SET subscription_item_id = EXCLUDED.subscription_item_id,
		    period_start = EXCLUDED.period_start,
		    window_start = EXCLUDED.window_start,
		    reported_minutes = EXCLUDED.reported_minutes,
		    reported_through = EXCLUDED.reported_through,
		    pending_minutes = EXCLUDED.pending_minutes,
		    pending_through = EXCLUDED.pending_through,
		    pending_key = EXCLUDED.pending_key,
		    updated_at = NOW()
	`
	var pendingMinutes sql.NullInt64
	var pendingThrough sql.NullTime
	var pendingKey sql.NullString
	if p := state.Pending; p != nil {
		pendingMinutes = sql.NullInt64{Int64: p.Minutes, Valid: true}
		pendingThrough = sql.NullTime{Time: p.Through, Valid: true}
		pendingKey = sql.NullString{String: p.Key, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		state.UserID, state.SubscriptionItemID, state.PeriodStart, state.WindowStart,
		state.ReportedMinutes, state.ReportedThrough,
		pendingMinutes, pendingThrough, pendingKey,
	)
	if err != nil {
		return apperr.Dependency("database", "save report state", err)
	}
	return nil
}
