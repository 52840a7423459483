package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

const agentColumns = `id, site_id, name, published, settings, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (*Agent, error) {
	agent := &Agent{}
	var settingsJSON []byte
	if err := row.Scan(
		&agent.ID, &agent.SiteID, &agent.Name, &agent.Published, &settingsJSON,
		&agent.CreatedAt, &agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &agent.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	agent.Settings.Published = agent.Published
	return agent, nil
}

// CreateAgent creates an agent under a site if the owning organization is
// below its agent limit. The count and insert share one transaction holding
// the organization's advisory lock.
func (s *PostgresService) CreateAgent(ctx context.Context, siteID int64, req *CreateAgentRequest) (*Agent, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: agent name is required", ErrInvalidRequest)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Dependency("database", "begin transaction", err)
	}
	defer tx.Rollback()

	var orgID int64
	err = tx.QueryRowContext(ctx, `SELECT organization_id FROM sites WHERE id = $1`, siteID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("site", siteID)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get site", err)
	}

	if err := lockOrganization(ctx, tx, orgID); err != nil {
		return nil, err
	}

	check, err := s.agentLimit(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}
	if !check.CanCreate {
		return nil, &QuotaExceededError{
			Resource: ResourceAgents,
			Current:  int64(check.CurrentCount),
			Limit:    int64(check.MaxAllowed),
			Tier:     check.Tier,
		}
	}

	settings := req.Settings
	settings.Published = false
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO agents (site_id, name, published, settings)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	agent := &Agent{
		SiteID:   siteID,
		Name:     strings.TrimSpace(req.Name),
		Settings: settings,
	}
	if err := tx.QueryRowContext(ctx, query, agent.SiteID, agent.Name, agent.Published, string(settingsJSON)).
		Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		return nil, apperr.Dependency("database", "create agent", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Dependency("database", "commit agent", err)
	}
	return agent, nil
}

// GetAgent retrieves an agent by ID
func (s *PostgresService) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("agent", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get agent", err)
	}
	return agent, nil
}

// ListAgents lists agents for a site
func (s *PostgresService) ListAgents(ctx context.Context, siteID int64) ([]*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE site_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, apperr.Dependency("database", "list agents", err)
	}
	defer rows.Close()

	agents := []*Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency("database", "list agents", err)
	}
	return agents, nil
}

// UpdateAgentSettings replaces an agent's settings. The published flag is owned
// by SetAgentPublished and is not changed here.
func (s *PostgresService) UpdateAgentSettings(ctx context.Context, id int64, settings AgentSettings) (*Agent, error) {
	query := `
		UPDATE agents
		SET settings = jsonb_set($1::jsonb, '{published}', to_jsonb(published)), updated_at = NOW()
		WHERE id = $2
		RETURNING ` + agentColumns
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, string(settingsJSON), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("agent", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "update agent settings", err)
	}
	return agent, nil
}

// SetAgentPublished publishes or unpublishes an agent
func (s *PostgresService) SetAgentPublished(ctx context.Context, id int64, published bool) (*Agent, error) {
	query := `
		UPDATE agents
		SET published = $1, settings = jsonb_set(settings, '{published}', to_jsonb($1::boolean)), updated_at = NOW()
		WHERE id = $2
		RETURNING ` + agentColumns

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, published, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("agent", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "publish agent", err)
	}
	return agent, nil
}

// DeleteAgent deletes an agent and, by cascade, its sessions
func (s *PostgresService) DeleteAgent(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return apperr.Dependency("database", "delete agent", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("agent", id)
	}
	return nil
}

// OrganizationForAgent resolves the organization owning an agent
func (s *PostgresService) OrganizationForAgent(ctx context.Context, agentID int64) (int64, error) {
	return organizationForAgent(ctx, s.db, agentID)
}

func organizationForAgent(ctx context.Context, q queryer, agentID int64) (int64, error) {
	query := `
		SELECT s.organization_id
		FROM agents a
		JOIN sites s ON a.site_id = s.id
		WHERE a.id = $1
	`
	var orgID int64
	err := q.QueryRowContext(ctx, query, agentID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("agent", agentID)
	}
	if err != nil {
		return 0, apperr.Dependency("database", "get agent organization", err)
	}
	return orgID, nil
}
