// Package tiers maps subscription tiers to resource limits.
//
// # Overview
//
// Both agent-creation and session-creation admission read their numbers from the
// same Table, so a tier can never carry two different limits at two call sites.
//
// # Default Limits
//
// BASIC:
//   - 3 agents
//   - 50 active onboarding sessions
//
// PRO:
//   - 10 agents
//   - 500 active onboarding sessions
//
// GROWTH:
//   - 50 agents
//   - 5000 active onboarding sessions
//
// # Usage Example
//
//	table := tiers.DefaultTable()
//	limits, err := table.ResolveLimits(tiers.TierPro)
//	if apperr.IsConfiguration(err) {
//		return err // never fall back to a guessed tier
//	}
//
// Override the defaults from YAML:
//
//	tiers:
//	  BASIC:  {max_agents: 5, max_sessions: 100}
//	  PRO:    {max_agents: 20, max_sessions: 1000}
//	  GROWTH: {max_agents: 100, max_sessions: 10000}
//
// # Related Packages
//
//   - pkg/orgs: Admission checks against these limits
//   - pkg/billing: Maps Stripe prices onto tiers
package tiers
