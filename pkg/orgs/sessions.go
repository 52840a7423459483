package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

const sessionColumns = `id, agent_id, name, status, started_at, completed_at, expires_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*OnboardingSession, error) {
	session := &OnboardingSession{}
	err := row.Scan(
		&session.ID, &session.AgentID, &session.Name, &session.Status, &session.StartedAt,
		&session.CompletedAt, &session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSession starts an onboarding session for an agent if the owning
// organization is below its active session limit
func (s *PostgresService) CreateSession(ctx context.Context, agentID int64, req *CreateSessionRequest) (*OnboardingSession, error) {
	if req == nil {
		req = &CreateSessionRequest{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Dependency("database", "begin transaction", err)
	}
	defer tx.Rollback()

	orgID, err := organizationForAgent(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}

	if err := lockOrganization(ctx, tx, orgID); err != nil {
		return nil, err
	}

	check, err := s.sessionLimit(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}
	if !check.CanCreate {
		return nil, &QuotaExceededError{
			Resource: ResourceSessions,
			Current:  int64(check.CurrentCount),
			Limit:    int64(check.MaxAllowed),
			Tier:     check.Tier,
		}
	}

	query := `
		INSERT INTO onboarding_sessions (agent_id, name, status, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + sessionColumns
	session, err := scanSession(tx.QueryRowContext(ctx, query,
		agentID, strings.TrimSpace(req.Name), SessionStatusPending, req.ExpiresAt))
	if err != nil {
		return nil, apperr.Dependency("database", "create session", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Dependency("database", "commit session", err)
	}
	return session, nil
}

// GetSession retrieves an onboarding session by ID
func (s *PostgresService) GetSession(ctx context.Context, id int64) (*OnboardingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM onboarding_sessions WHERE id = $1`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get session", err)
	}
	return session, nil
}

// UpdateSessionStatus moves a session along pending -> in_progress -> completed|expired
func (s *PostgresService) UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus) (*OnboardingSession, error) {
	from, ok := allowedFrom[status]
	if !ok {
		return nil, fmt.Errorf("%w: cannot move to %q", ErrInvalidStatusTransition, status)
	}

	query := `
		UPDATE onboarding_sessions
		SET status = $1,
		    completed_at = CASE WHEN $2::boolean THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
		RETURNING ` + sessionColumns
	session, err := scanSession(s.db.QueryRowContext(ctx, query,
		status, status == SessionStatusCompleted, id, pq.Array(from)))
	if errors.Is(err, sql.ErrNoRows) {
		// distinguish a missing session from a disallowed transition
		current, getErr := s.GetSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, current.Status, status)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "update session status", err)
	}
	return session, nil
}

// DeleteSession deletes an onboarding session. Usage logs referencing it are kept.
func (s *PostgresService) DeleteSession(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM onboarding_sessions WHERE id = $1`, id)
	if err != nil {
		return apperr.Dependency("database", "delete session", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("session", id)
	}
	return nil
}
