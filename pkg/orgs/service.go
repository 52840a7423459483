package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/tiers"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db    *sql.DB
	tiers *tiers.Table
}

// NewPostgresService creates a new PostgresService. db must be the primary
// connection: admission counts read from it so replica lag cannot under-count.
func NewPostgresService(db *sql.DB, table *tiers.Table) *PostgresService {
	if table == nil {
		table = tiers.DefaultTable()
	}
	return &PostgresService{db: db, tiers: table}
}

const organizationColumns = `id, name, slug, display_name, tier, stripe_customer_id,
	stripe_subscription_id, status, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (*Organization, error) {
	org := &Organization{}
	var customerID, subscriptionID sql.NullString
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.DisplayName, &org.Tier, &customerID,
		&subscriptionID, &org.Status, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	org.StripeCustomerID = customerID.String
	org.StripeSubscriptionID = subscriptionID.String
	return org, nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("organization", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get organization", err)
	}
	return org, nil
}

// GetOrganizationByCustomer retrieves the organization owning a Stripe customer
func (s *PostgresService) GetOrganizationByCustomer(ctx context.Context, customerID string) (*Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE stripe_customer_id = $1`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.NotFoundError{Resource: "organization for customer", ID: customerID}
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get organization by customer", err)
	}
	return org, nil
}

// ListBillableOrganizations lists active organizations with a Stripe customer on file
func (s *PostgresService) ListBillableOrganizations(ctx context.Context) ([]*Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM organizations
		WHERE stripe_customer_id IS NOT NULL AND status = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, OrgStatusActive)
	if err != nil {
		return nil, apperr.Dependency("database", "list billable organizations", err)
	}
	defer rows.Close()

	var result []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		result = append(result, org)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency("database", "list billable organizations", err)
	}
	return result, nil
}

// SetOrganizationTier records a tier change driven by billing
func (s *PostgresService) SetOrganizationTier(ctx context.Context, id int64, tier tiers.Tier, subscriptionID string) error {
	if !tier.Valid() {
		return apperr.Configuration("unknown tier %q", tier)
	}

	query := `
		UPDATE organizations
		SET tier = $1, stripe_subscription_id = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, tier, subscriptionID, id)
	if err != nil {
		return apperr.Dependency("database", "set organization tier", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("organization", id)
	}
	return nil
}

const userColumns = `id, organization_id, email, stripe_customer_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	user := &User{}
	var customerID sql.NullString
	if err := row.Scan(&user.ID, &user.OrganizationID, &user.Email, &customerID, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.StripeCustomerID = strings.TrimSpace(customerID.String)
	return user, nil
}

// GetUser retrieves a user by ID
func (s *PostgresService) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get user", err)
	}
	return user, nil
}

// ListBillableUsers lists users with a Stripe customer on file
func (s *PostgresService) ListBillableUsers(ctx context.Context) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE stripe_customer_id IS NOT NULL AND stripe_customer_id <> ''
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.Dependency("database", "list billable users", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency("database", "list billable users", err)
	}
	return users, nil
}

// GetSite retrieves a site by ID
func (s *PostgresService) GetSite(ctx context.Context, id int64) (*Site, error) {
	query := `SELECT id, organization_id, name, domain, created_at FROM sites WHERE id = $1`
	site := &Site{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&site.ID, &site.OrganizationID, &site.Name, &site.Domain, &site.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("site", id)
	}
	if err != nil {
		return nil, apperr.Dependency("database", "get site", err)
	}
	return site, nil
}

// lockOrganization serializes admission for one organization until the
// surrounding transaction ends
func lockOrganization(ctx context.Context, tx *sql.Tx, orgID int64) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, orgID); err != nil {
		return apperr.Dependency("database", "lock organization", err)
	}
	return nil
}
