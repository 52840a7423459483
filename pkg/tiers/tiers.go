package tiers

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

// Tier represents a subscription tier
type Tier string

const (
	TierBasic  Tier = "BASIC"
	TierPro    Tier = "PRO"
	TierGrowth Tier = "GROWTH"
)

// All lists every tier in ascending order
var All = []Tier{TierBasic, TierPro, TierGrowth}

// Valid reports whether t belongs to the closed set of tiers
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPro, TierGrowth:
		return true
	default:
		return false
	}
}

// ParseTier parses a tier name, ignoring case and surrounding whitespace
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", apperr.Configuration("unknown tier %q", s)
	}
	return t, nil
}

// Limits holds the resource limits of one tier
type Limits struct {
	MaxAgents   int `json:"max_agents" yaml:"max_agents"`
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`
}

// NearLimit is the display hint shown one unit below the maximum.
// It does not affect admission, which is strictly current < max.
func NearLimit(current, max int) bool {
	return current >= max-1
}

// Table is an immutable tier to limits mapping
type Table struct {
	limits map[Tier]Limits
}

// DefaultTable returns the built-in limits
func DefaultTable() *Table {
	return &Table{limits: map[Tier]Limits{
		TierBasic:  {MaxAgents: 3, MaxSessions: 50},
		TierPro:    {MaxAgents: 10, MaxSessions: 500},
		TierGrowth: {MaxAgents: 50, MaxSessions: 5000},
	}}
}

// NewTable builds a table from an explicit mapping. Every tier must be present
// with positive limits and no unknown tiers are accepted.
func NewTable(limits map[Tier]Limits) (*Table, error) {
	t := &Table{limits: make(map[Tier]Limits, len(limits))}
	for tier, l := range limits {
		if !tier.Valid() {
			return nil, apperr.Configuration("unknown tier %q in limits table", tier)
		}
		if l.MaxAgents <= 0 || l.MaxSessions <= 0 {
			return nil, apperr.Configuration("tier %s must have positive limits", tier)
		}
		t.limits[tier] = l
	}
	for _, tier := range All {
		if _, ok := t.limits[tier]; !ok {
			return nil, apperr.Configuration("tier %s missing from limits table", tier)
		}
	}
	return t, nil
}

type tableFile struct {
	Tiers map[string]Limits `yaml:"tiers"`
}

// LoadTable reads a YAML limits table from path
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML limits table
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperr.Configuration("invalid tier table: %v", err)
	}

	limits := make(map[Tier]Limits, len(f.Tiers))
	for name, l := range f.Tiers {
		tier, err := ParseTier(name)
		if err != nil {
			return nil, err
		}
		limits[tier] = l
	}
	return NewTable(limits)
}

// ResolveLimits returns the limits of a tier. Unknown tiers fail with a
// ConfigurationError instead of defaulting, since billing depends on the mapping.
func (t *Table) ResolveLimits(tier Tier) (Limits, error) {
	l, ok := t.limits[tier]
	if !ok {
		return Limits{}, apperr.Configuration("unknown tier %q", tier)
	}
	return l, nil
}
