// Package apperr defines the error taxonomy shared by the admission and billing packages.
//
// # Kinds
//
//   - NotFoundError: an organization, user, agent, or session does not exist
//   - ConfigurationError: an unknown tier or a missing mapping; never defaulted
//   - DependencyError: the database or the payment provider failed or timed out
//   - PartialEnrichmentError: a non-critical enrichment step failed; callers log it
//     and substitute the documented zero value for that one field
//
// Use the Is* helpers rather than type assertions, since errors are usually wrapped:
//
//	limits, err := counter.CheckAgentLimit(ctx, orgID)
//	if apperr.IsNotFound(err) {
//		httputil.WriteNotFoundError(w, err.Error())
//		return
//	}
package apperr
