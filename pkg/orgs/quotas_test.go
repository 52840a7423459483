package orgs

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/tiers"
)

func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db, nil), mock
}

func expectTier(mock sqlmock.Sqlmock, orgID int64, tier string) {
	mock.ExpectQuery("SELECT tier FROM organizations WHERE id").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"tier"}).AddRow(tier))
}

func expectAgentCount(mock sqlmock.Sqlmock, orgID int64, count int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM agents`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func expectSessionCount(mock sqlmock.Sqlmock, orgID int64, count int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM onboarding_sessions`).
		WithArgs(orgID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestCheckAgentLimit_AtLimit(t *testing.T) {
	service, mock := newMockService(t)

	expectTier(mock, 10, "BASIC")
	expectAgentCount(mock, 10, 3)

	check, err := service.CheckAgentLimit(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, &LimitCheck{CurrentCount: 3, MaxAllowed: 3, CanCreate: false, Tier: tiers.TierBasic}, check)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAgentLimit_OneBelowLimit(t *testing.T) {
	service, mock := newMockService(t)

	expectTier(mock, 10, "PRO")
	expectAgentCount(mock, 10, 9)

	check, err := service.CheckAgentLimit(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, check.CanCreate)
	assert.True(t, check.NearLimit())
	assert.Equal(t, 10, check.MaxAllowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAgentLimit_OrganizationNotFound(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery("SELECT tier FROM organizations WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"tier"}))

	check, err := service.CheckAgentLimit(context.Background(), 99)
	assert.Nil(t, check)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAgentLimit_UnknownTier(t *testing.T) {
	service, mock := newMockService(t)

	expectTier(mock, 10, "ENTERPRISE")

	check, err := service.CheckAgentLimit(context.Background(), 10)
	assert.Nil(t, check)
	assert.True(t, apperr.IsConfiguration(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAgentLimit_DatabaseError(t *testing.T) {
	service, mock := newMockService(t)

	expectTier(mock, 10, "BASIC")
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM agents`).
		WithArgs(int64(10)).
		WillReturnError(errors.New("connection reset"))

	check, err := service.CheckAgentLimit(context.Background(), 10)
	assert.Nil(t, check)
	assert.True(t, apperr.IsDependency(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckSessionLimit(t *testing.T) {
	tests := []struct {
		name      string
		tier      string
		count     int
		max       int
		canCreate bool
	}{
		{name: "basic empty", tier: "BASIC", count: 0, max: 50, canCreate: true},
		{name: "basic at limit", tier: "BASIC", count: 50, max: 50, canCreate: false},
		{name: "growth near limit", tier: "GROWTH", count: 4999, max: 5000, canCreate: true},
		{name: "pro over limit after downgrade", tier: "PRO", count: 700, max: 500, canCreate: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mock := newMockService(t)

			expectTier(mock, 7, tt.tier)
			expectSessionCount(mock, 7, tt.count)

			check, err := service.CheckSessionLimit(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tt.count, check.CurrentCount)
			assert.Equal(t, tt.max, check.MaxAllowed)
			assert.Equal(t, tt.canCreate, check.CanCreate)
			assert.Equal(t, tiers.Tier(tt.tier), check.Tier)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCheckLimit_CustomTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	table, err := tiers.NewTable(map[tiers.Tier]tiers.Limits{
		tiers.TierBasic:  {MaxAgents: 1, MaxSessions: 2},
		tiers.TierPro:    {MaxAgents: 5, MaxSessions: 20},
		tiers.TierGrowth: {MaxAgents: 25, MaxSessions: 200},
	})
	require.NoError(t, err)
	service := NewPostgresService(db, table)

	expectTier(mock, 3, "BASIC")
	expectAgentCount(mock, 3, 1)

	check, err := service.CheckAgentLimit(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, check.MaxAllowed)
	assert.False(t, check.CanCreate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsageLimits(t *testing.T) {
	service, mock := newMockService(t)
	// both checks run concurrently
	mock.MatchExpectationsInOrder(false)

	expectTier(mock, 10, "BASIC")
	expectTier(mock, 10, "BASIC")
	expectAgentCount(mock, 10, 2)
	expectSessionCount(mock, 10, 50)

	limits, err := service.GetUsageLimits(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, &UsageLimits{
		AgentCount:       2,
		MaxAgents:        3,
		CanCreateAgent:   true,
		AgentTier:        tiers.TierBasic,
		SessionCount:     50,
		MaxSessions:      50,
		CanCreateSession: false,
		SessionTier:      tiers.TierBasic,
		IsAtLimit:        true,
		IsNearLimit:      true,
	}, limits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsageLimits_PropagatesNotFound(t *testing.T) {
	service, mock := newMockService(t)
	mock.MatchExpectationsInOrder(false)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT tier FROM organizations WHERE id").
			WithArgs(int64(404)).
			WillReturnRows(sqlmock.NewRows([]string{"tier"}))
	}

	limits, err := service.GetUsageLimits(context.Background(), 404)
	assert.Nil(t, limits)
	assert.True(t, apperr.IsNotFound(err))
}

func TestCombineLimits(t *testing.T) {
	tests := []struct {
		name     string
		agents   *LimitCheck
		sessions *LimitCheck
		atLimit  bool
		nearLim  bool
	}{
		{
			name:     "plenty of room",
			agents:   &LimitCheck{CurrentCount: 0, MaxAllowed: 10, CanCreate: true, Tier: tiers.TierPro},
			sessions: &LimitCheck{CurrentCount: 10, MaxAllowed: 500, CanCreate: true, Tier: tiers.TierPro},
			atLimit:  false,
			nearLim:  false,
		},
		{
			name:     "agents near limit",
			agents:   &LimitCheck{CurrentCount: 9, MaxAllowed: 10, CanCreate: true, Tier: tiers.TierPro},
			sessions: &LimitCheck{CurrentCount: 10, MaxAllowed: 500, CanCreate: true, Tier: tiers.TierPro},
			atLimit:  false,
			nearLim:  true,
		},
		{
			name:     "sessions at limit",
			agents:   &LimitCheck{CurrentCount: 1, MaxAllowed: 10, CanCreate: true, Tier: tiers.TierPro},
			sessions: &LimitCheck{CurrentCount: 500, MaxAllowed: 500, CanCreate: false, Tier: tiers.TierPro},
			atLimit:  true,
			nearLim:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := CombineLimits(tt.agents, tt.sessions)
			assert.Equal(t, tt.atLimit, limits.IsAtLimit)
			assert.Equal(t, tt.nearLim, limits.IsNearLimit)
			assert.Equal(t, tt.agents.CurrentCount, limits.AgentCount)
			assert.Equal(t, tt.sessions.MaxAllowed, limits.MaxSessions)
		})
	}
}

func TestQuotaExceededError(t *testing.T) {
	err := &QuotaExceededError{Resource: ResourceAgents, Current: 3, Limit: 3, Tier: tiers.TierBasic}
	assert.Equal(t, "quota exceeded for agents: 3 of 3 allowed on tier BASIC", err.Error())
	assert.True(t, IsQuotaExceeded(err))
	assert.True(t, IsQuotaExceeded(errors.Join(errors.New("create agent"), err)))
	assert.False(t, IsQuotaExceeded(errors.New("other")))
}
