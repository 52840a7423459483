package orgs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/tiers"
)

var organizationRowColumns = []string{
	"id", "name", "slug", "display_name", "tier", "stripe_customer_id",
	"stripe_subscription_id", "status", "created_at", "updated_at",
}

func TestGetOrganization(t *testing.T) {
	service, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(organizationRowColumns).
			AddRow(10, "acme", "acme", "Acme Inc", "GROWTH", "cus_123", nil, "active", now, now))

	org, err := service.GetOrganization(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, tiers.TierGrowth, org.Tier)
	assert.Equal(t, "cus_123", org.StripeCustomerID)
	assert.Empty(t, org.StripeSubscriptionID)
	assert.Equal(t, OrgStatusActive, org.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganization_NotFound(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(organizationRowColumns))

	_, err := service.GetOrganization(context.Background(), 10)
	assert.True(t, apperr.IsNotFound(err))
	assert.EqualError(t, err, "organization 10 not found")
}

func TestGetOrganizationByCustomer(t *testing.T) {
	service, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE stripe_customer_id").
		WithArgs("cus_123").
		WillReturnRows(sqlmock.NewRows(organizationRowColumns).
			AddRow(10, "acme", "acme", "Acme Inc", "PRO", "cus_123", "sub_1", "active", now, now))
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE stripe_customer_id").
		WithArgs("cus_missing").
		WillReturnRows(sqlmock.NewRows(organizationRowColumns))

	org, err := service.GetOrganizationByCustomer(context.Background(), "cus_123")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", org.StripeSubscriptionID)

	_, err = service.GetOrganizationByCustomer(context.Background(), "cus_missing")
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBillableOrganizations(t *testing.T) {
	service, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE stripe_customer_id IS NOT NULL").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows(organizationRowColumns).
			AddRow(1, "a", "a", "A", "BASIC", "cus_a", nil, "active", now, now).
			AddRow(2, "b", "b", "B", "PRO", "cus_b", "sub_b", "active", now, now))

	orgs, err := service.ListBillableOrganizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, tiers.TierPro, orgs[1].Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOrganizationTier(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectExec("UPDATE organizations SET tier").
		WithArgs("PRO", "sub_1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.SetOrganizationTier(context.Background(), 10, tiers.TierPro, "sub_1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOrganizationTier_Errors(t *testing.T) {
	service, mock := newMockService(t)

	err := service.SetOrganizationTier(context.Background(), 10, tiers.Tier("PLATINUM"), "")
	assert.True(t, apperr.IsConfiguration(err))

	mock.ExpectExec("UPDATE organizations SET tier").
		WithArgs("BASIC", "", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = service.SetOrganizationTier(context.Background(), 11, tiers.TierBasic, "")
	assert.True(t, apperr.IsNotFound(err))

	mock.ExpectExec("UPDATE organizations SET tier").
		WithArgs("BASIC", "", int64(12)).
		WillReturnError(errors.New("read-only transaction"))
	err = service.SetOrganizationTier(context.Background(), 12, tiers.TierBasic, "")
	assert.True(t, apperr.IsDependency(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser(t *testing.T) {
	service, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "stripe_customer_id", "created_at"}).
			AddRow(3, 10, "jane@example.com", nil, now))

	user, err := service.GetUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), user.OrganizationID)
	assert.Empty(t, user.StripeCustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBillableUsers(t *testing.T) {
	service, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE stripe_customer_id IS NOT NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "stripe_customer_id", "created_at"}).
			AddRow(3, 10, "jane@example.com", "cus_3", now))

	users, err := service.ListBillableUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "cus_3", users[0].StripeCustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSite(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery("SELECT (.+) FROM sites WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name", "domain", "created_at"}))

	_, err := service.GetSite(context.Background(), 5)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
