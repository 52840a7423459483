package api

import (
	"io"
	"net/http"

	"github.com/platinummonkey/onramp/pkg/httputil"
)

// stripeSignatureHeader carries the webhook signature
const stripeSignatureHeader = "Stripe-Signature"

// handleWebhook verifies and applies a payment provider event. Duplicate and
// ignored events are acknowledged with 200 so the provider stops retrying.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	result, err := s.billing.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, WebhookResponse{Result: result})
}
