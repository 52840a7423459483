package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
)

// AdmissionMiddleware refuses creates that the advisory limit check rejects
type AdmissionMiddleware struct {
	checker orgs.QuotaChecker
	metrics *observability.Metrics
}

// NewAdmissionMiddleware creates a new AdmissionMiddleware
func NewAdmissionMiddleware(checker orgs.QuotaChecker, metrics *observability.Metrics) *AdmissionMiddleware {
	return &AdmissionMiddleware{checker: checker, metrics: metrics}
}

// RequireAgentSlot admits the request only if the organization may create another agent
func (m *AdmissionMiddleware) RequireAgentSlot(resolve OrgResolver) func(http.Handler) http.Handler {
	return m.require(orgs.ResourceAgents, resolve, m.checker.CheckAgentLimit)
}

// RequireSessionSlot admits the request only if the organization may start another session
func (m *AdmissionMiddleware) RequireSessionSlot(resolve OrgResolver) func(http.Handler) http.Handler {
	return m.require(orgs.ResourceSessions, resolve, m.checker.CheckSessionLimit)
}

type limitCheck func(ctx context.Context, orgID int64) (*orgs.LimitCheck, error)

func (m *AdmissionMiddleware) require(resource string, resolve OrgResolver, check limitCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := resolve(r)
			if err != nil {
				writeCheckError(w, r, err, http.StatusBadRequest)
				return
			}
			ctx := observability.WithOrgID(r.Context(), orgID)

			result, err := check(ctx, orgID)
			if err != nil {
				writeCheckError(w, r.WithContext(ctx), err, http.StatusInternalServerError)
				return
			}

			if !result.CanCreate {
				m.metrics.ObserveAdmission(resource, observability.OutcomeRefused)
				refusal := &orgs.QuotaExceededError{
					Resource: resource,
					Current:  int64(result.CurrentCount),
					Limit:    int64(result.MaxAllowed),
					Tier:     result.Tier,
				}
				httputil.WriteDetailedError(w, http.StatusForbidden, refusal, map[string]any{
					"resource":     resource,
					"currentCount": result.CurrentCount,
					"maxAllowed":   result.MaxAllowed,
					"tier":         result.Tier,
				})
				return
			}

			m.metrics.ObserveAdmission(resource, observability.OutcomeAllowed)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeCheckError answers a failed resolution or check. Failures never admit.
// Unclassified errors are answered with fallback.
func writeCheckError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	switch {
	case apperr.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case apperr.IsDependency(err):
		observability.FromContext(r.Context()).WithError(err).Warn("Admission check unavailable")
		httputil.WriteServiceUnavailable(w, "admission check unavailable")
	case apperr.IsConfiguration(err):
		observability.FromContext(r.Context()).WithError(err).Error("Admission check misconfigured")
		httputil.WriteInternalError(w)
	case fallback == http.StatusBadRequest:
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Admission check failed")
		httputil.WriteInternalError(w)
	}
}
