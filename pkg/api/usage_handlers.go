package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// stepBillingUsage names the billing lookup folded into the usage summary
const stepBillingUsage = "billing_usage"

func (s *Server) getUsageLimits(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	r = r.WithContext(observability.WithOrgID(r.Context(), orgID))

	limits, err := s.orgs.GetUsageLimits(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, limits)
}

// getUsageSummary combines the usage aggregate with the billing view. The
// two lookups run concurrently. A provider outage leaves billingStatus
// "unavailable" rather than failing the page.
func (s *Server) getUsageSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var stats *usage.UsageStats
	var bu *billing.BillingUsage
	var billingErr error

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		stats, err = s.usage.GetUsageSummary(ctx, userID)
		return err
	})
	g.Go(func() error {
		bu, billingErr = s.billing.GetBillingUsage(ctx, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if billingErr != nil {
		if !apperr.IsDependency(billingErr) {
			writeServiceError(w, r, billingErr)
			return
		}
		observability.FromContext(r.Context()).
			WithField("user_id", userID).
			WithError(&apperr.PartialEnrichmentError{Step: stepBillingUsage, Err: billingErr}).
			Warn("Usage summary returned without billing")
		s.metrics.ObserveEnrichmentFailure(stepBillingUsage)
		bu = nil
	}

	httputil.WriteSuccess(w, newUsageSummaryResponse(stats, bu))
}

func (s *Server) getBillingUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	bu, err := s.billing.GetBillingUsage(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, bu)
}

func (s *Server) recordUsage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "session_id")
	if !ok {
		return
	}

	var req RecordUsageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "userId is required")
		return
	}

	log, err := s.usage.RecordUsage(r.Context(), req.UserID, sessionID, req.DurationSeconds, req.MessageCount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.metrics.ObserveUsage(log.DurationSeconds)
	httputil.WriteCreated(w, log)
}
