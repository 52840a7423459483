package tiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

func TestResolveLimits_Defaults(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		tier     Tier
		expected Limits
	}{
		{TierBasic, Limits{MaxAgents: 3, MaxSessions: 50}},
		{TierPro, Limits{MaxAgents: 10, MaxSessions: 500}},
		{TierGrowth, Limits{MaxAgents: 50, MaxSessions: 5000}},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			first, err := table.ResolveLimits(tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, first)

			// same answer on every call
			for i := 0; i < 5; i++ {
				again, err := table.ResolveLimits(tt.tier)
				require.NoError(t, err)
				assert.Equal(t, first, again)
			}
		})
	}
}

func TestResolveLimits_UnknownTier(t *testing.T) {
	table := DefaultTable()

	for _, tier := range []Tier{"", "basic", "ENTERPRISE", "FREE"} {
		_, err := table.ResolveLimits(tier)
		assert.Error(t, err, "tier %q", tier)
		assert.True(t, apperr.IsConfiguration(err))
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("  growth ")
	require.NoError(t, err)
	assert.Equal(t, TierGrowth, tier)

	_, err = ParseTier("platinum")
	assert.True(t, apperr.IsConfiguration(err))
}

func TestNearLimit(t *testing.T) {
	assert.False(t, NearLimit(1, 3))
	assert.True(t, NearLimit(2, 3))
	assert.True(t, NearLimit(3, 3))
	assert.True(t, NearLimit(4, 3))
}

func TestNewTable_Validation(t *testing.T) {
	full := map[Tier]Limits{
		TierBasic:  {MaxAgents: 1, MaxSessions: 1},
		TierPro:    {MaxAgents: 2, MaxSessions: 2},
		TierGrowth: {MaxAgents: 3, MaxSessions: 3},
	}
	table, err := NewTable(full)
	require.NoError(t, err)
	l, err := table.ResolveLimits(TierPro)
	require.NoError(t, err)
	assert.Equal(t, 2, l.MaxAgents)

	t.Run("missing tier", func(t *testing.T) {
		_, err := NewTable(map[Tier]Limits{TierBasic: {MaxAgents: 1, MaxSessions: 1}})
		assert.True(t, apperr.IsConfiguration(err))
	})

	t.Run("zero limit", func(t *testing.T) {
		bad := map[Tier]Limits{
			TierBasic:  {MaxAgents: 0, MaxSessions: 1},
			TierPro:    {MaxAgents: 2, MaxSessions: 2},
			TierGrowth: {MaxAgents: 3, MaxSessions: 3},
		}
		_, err := NewTable(bad)
		assert.True(t, apperr.IsConfiguration(err))
	})

	t.Run("unknown tier", func(t *testing.T) {
		bad := map[Tier]Limits{
			TierBasic:  {MaxAgents: 1, MaxSessions: 1},
			TierPro:    {MaxAgents: 2, MaxSessions: 2},
			TierGrowth: {MaxAgents: 3, MaxSessions: 3},
			"FREE":     {MaxAgents: 3, MaxSessions: 3},
		}
		_, err := NewTable(bad)
		assert.True(t, apperr.IsConfiguration(err))
	})
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `
tiers:
  basic:
    max_agents: 5
    max_sessions: 100
  PRO:
    max_agents: 20
    max_sessions: 1000
  Growth:
    max_agents: 100
    max_sessions: 10000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)

	l, err := table.ResolveLimits(TierBasic)
	require.NoError(t, err)
	assert.Equal(t, Limits{MaxAgents: 5, MaxSessions: 100}, l)
}

func TestParseTable_Errors(t *testing.T) {
	_, err := ParseTable([]byte("tiers: [oops"))
	assert.True(t, apperr.IsConfiguration(err))

	_, err = ParseTable([]byte("tiers:\n  PLATINUM: {max_agents: 1, max_sessions: 1}\n"))
	assert.True(t, apperr.IsConfiguration(err))

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
