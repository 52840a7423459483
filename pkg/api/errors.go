package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// writeServiceError maps a service error onto an HTTP response
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.FromContext(r.Context()).WithError(err)

	var quota *orgs.QuotaExceededError
	switch {
	case apperr.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.As(err, &quota):
		httputil.WriteDetailedError(w, http.StatusForbidden, quota, map[string]any{
			"resource":     quota.Resource,
			"currentCount": quota.Current,
			"maxAllowed":   quota.Limit,
			"tier":         quota.Tier,
		})
	case errors.Is(err, orgs.ErrInvalidStatusTransition):
		httputil.WriteError(w, http.StatusConflict, err)
	case errors.Is(err, orgs.ErrInvalidRequest),
		errors.Is(err, usage.ErrInvalidUsage),
		errors.Is(err, billing.ErrInvalidSignature):
		httputil.WriteBadRequest(w, err.Error())
	case apperr.IsDependency(err):
		logger.Warn("Dependency unavailable")
		httputil.WriteServiceUnavailable(w, "service temporarily unavailable")
	case apperr.IsConfiguration(err):
		logger.Error("Configuration error")
		httputil.WriteInternalError(w)
	default:
		logger.Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
