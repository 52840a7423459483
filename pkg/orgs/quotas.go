package orgs

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/tiers"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CheckAgentLimit checks if organization can create a new agent
func (s *PostgresService) CheckAgentLimit(ctx context.Context, orgID int64) (*LimitCheck, error) {
	return s.agentLimit(ctx, s.db, orgID)
}

// CheckSessionLimit checks if organization can start a new onboarding session
func (s *PostgresService) CheckSessionLimit(ctx context.Context, orgID int64) (*LimitCheck, error) {
	return s.sessionLimit(ctx, s.db, orgID)
}

// GetUsageLimits runs both admission checks for an organization
func (s *PostgresService) GetUsageLimits(ctx context.Context, orgID int64) (*UsageLimits, error) {
	var agents, sessions *LimitCheck

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agents, err = s.CheckAgentLimit(gctx, orgID)
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = s.CheckSessionLimit(gctx, orgID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return CombineLimits(agents, sessions), nil
}

// CombineLimits merges agent and session checks into the display shape
func CombineLimits(agents, sessions *LimitCheck) *UsageLimits {
	return &UsageLimits{
		AgentCount:       agents.CurrentCount,
		MaxAgents:        agents.MaxAllowed,
		CanCreateAgent:   agents.CanCreate,
		AgentTier:        agents.Tier,
		SessionCount:     sessions.CurrentCount,
		MaxSessions:      sessions.MaxAllowed,
		CanCreateSession: sessions.CanCreate,
		SessionTier:      sessions.Tier,
		IsAtLimit:        !agents.CanCreate || !sessions.CanCreate,
		IsNearLimit:      agents.NearLimit() || sessions.NearLimit(),
	}
}

func (s *PostgresService) agentLimit(ctx context.Context, q queryer, orgID int64) (*LimitCheck, error) {
	tier, limits, err := s.organizationLimits(ctx, q, orgID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT COUNT(*)
		FROM agents a
		JOIN sites s ON a.site_id = s.id
		WHERE s.organization_id = $1
	`
	var count int
	if err := q.QueryRowContext(ctx, query, orgID).Scan(&count); err != nil {
		return nil, apperr.Dependency("database", "count agents", err)
	}

	return newLimitCheck(count, limits.MaxAgents, tier), nil
}

func (s *PostgresService) sessionLimit(ctx context.Context, q queryer, orgID int64) (*LimitCheck, error) {
	tier, limits, err := s.organizationLimits(ctx, q, orgID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT COUNT(*)
		FROM onboarding_sessions os
		JOIN agents a ON os.agent_id = a.id
		JOIN sites s ON a.site_id = s.id
		WHERE s.organization_id = $1
		  AND os.status = ANY($2)
		  AND (os.expires_at IS NULL OR os.expires_at > NOW())
	`
	var count int
	if err := q.QueryRowContext(ctx, query, orgID, pq.Array(activeStatuses)).Scan(&count); err != nil {
		return nil, apperr.Dependency("database", "count active sessions", err)
	}

	return newLimitCheck(count, limits.MaxSessions, tier), nil
}

// organizationLimits reads the organization's tier and resolves its limits
func (s *PostgresService) organizationLimits(ctx context.Context, q queryer, orgID int64) (tiers.Tier, tiers.Limits, error) {
	var tier tiers.Tier
	err := q.QueryRowContext(ctx, `SELECT tier FROM organizations WHERE id = $1`, orgID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tiers.Limits{}, apperr.NotFound("organization", orgID)
	}
	if err != nil {
		return "", tiers.Limits{}, apperr.Dependency("database", "get organization tier", err)
	}

	limits, err := s.tiers.ResolveLimits(tier)
	if err != nil {
		return "", tiers.Limits{}, err
	}
	return tier, limits, nil
}

func newLimitCheck(current, max int, tier tiers.Tier) *LimitCheck {
	return &LimitCheck{
		CurrentCount: current,
		MaxAllowed:   max,
		CanCreate:    current < max,
		Tier:         tier,
	}
}
