// Package middleware provides HTTP middleware for tier admission
//
// # Admission
//
// AdmissionMiddleware refuses create requests early when the advisory limit
// check already says no, answering 403 with the numbers behind the decision:
//
//	{"error": "quota exceeded for agents: 3 of 3 allowed on tier BASIC",
//	 "details": {"resource": "agents", "currentCount": 3, "maxAllowed": 3, "tier": "BASIC"}}
//
// The check is advisory. Handlers behind it must still create through
// orgs.Service, which re-counts under a per-organization lock, so two
// requests admitted together cannot both take the last slot.
//
// # Organization resolution
//
// Create routes name a site or an agent, not an organization. An OrgResolver
// maps the request onto its organization:
//
//	router.Handle("/sites/{site_id}/agents",
//		admission.RequireAgentSlot(middleware.OrgFromSite(orgService, "site_id"))(createAgent)).
//		Methods("POST")
//
// The resolved organization is stored with observability.WithOrgID so
// request logs carry org_id.
package middleware
