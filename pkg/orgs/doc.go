// Package orgs provides multi-tenant organization management and usage admission.
//
// # Overview
//
// This package manages organizations, their sites, the agents (onboarding flows)
// owned by those sites, and the onboarding sessions run against each agent. It
// counts live resources per organization and compares them to the organization's
// tier limits from pkg/tiers.
//
// # Ownership
//
//	Organization -> Site -> Agent -> OnboardingSession
//
// Every count is scoped through this chain, so one tenant never sees another's rows.
//
// # Admission
//
// CheckAgentLimit and CheckSessionLimit are advisory reads. They take no lock, so two
// concurrent requests can both see room for one more resource:
//
//	check, err := service.CheckAgentLimit(ctx, orgID)
//	if err != nil {
//		return err // NotFound, Configuration, or Dependency
//	}
//	if !check.CanCreate {
//		return fmt.Errorf("upgrade from %s to create more agents", check.Tier)
//	}
//
// CreateAgent and CreateSession re-validate inside a transaction holding a
// per-organization advisory lock and refuse with *QuotaExceededError:
//
//	agent, err := service.CreateAgent(ctx, siteID, &orgs.CreateAgentRequest{Name: "Welcome"})
//	if orgs.IsQuotaExceeded(err) {
//		// 403 with current and limit
//	}
//
// # Related Packages
//
//   - pkg/tiers: Tier to limit mapping
//   - pkg/billing: Tier changes driven by Stripe subscriptions
package orgs
