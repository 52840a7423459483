// Package api provides the HTTP API for usage limits, usage summaries, and
// the agent and onboarding session lifecycle.
//
// # Routes
//
// Limits and usage:
//
//	GET  /orgs/{org_id}/usage-limits       - advisory admission numbers for both resources
//	GET  /users/{user_id}/usage-summary    - usage totals, daily buckets, billing fields
//	GET  /users/{user_id}/billing-usage    - payment provider view of the current period
//	POST /sessions/{session_id}/usage      - append a usage log
//
// Agents and sessions:
//
//	POST   /sites/{site_id}/agents          - create (admission checked)
//	GET    /sites/{site_id}/agents
//	GET    /agents/{agent_id}
//	DELETE /agents/{agent_id}
//	PUT    /agents/{agent_id}/settings
//	PUT    /agents/{agent_id}/publish
//	POST   /agents/{agent_id}/sessions      - start (admission checked)
//	GET    /sessions/{session_id}
//	DELETE /sessions/{session_id}
//	PUT    /sessions/{session_id}/status
//
// Billing:
//
//	POST /billing/webhook                  - Stripe events, verified by Stripe-Signature
//
// Documentation: GET /openapi.yaml, /openapi.json, /swagger-ui.
//
// # Errors
//
// Errors are JSON {"error": "..."} with the status chosen by type:
// NotFound 404, quota refusal 403 (with details), invalid transition 409,
// validation 400, configuration 500, dependency 503.
package api
