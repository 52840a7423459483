package api

import (
	"time"

	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// BillingUnavailable is reported as billingStatus when the payment provider
// could not be reached; the usage fields are still accurate
const BillingUnavailable billing.Status = "unavailable"

// UsageSummaryResponse is the usage summary page. Billing fields are present
// only when the user has a billing identity.
type UsageSummaryResponse struct {
	*usage.UsageStats
	BillingStatus      billing.Status `json:"billingStatus"`
	SubscriptionStatus billing.Status `json:"subscriptionStatus,omitempty"`
	TotalAmountDue     *float64       `json:"totalAmountDue,omitempty"`
	CurrentUsage       *int64         `json:"currentUsage,omitempty"`
	RatePerMinute      *float64       `json:"ratePerMinute,omitempty"`
	BillingPeriodStart *time.Time     `json:"billingPeriodStart,omitempty"`
	BillingPeriodEnd   *time.Time     `json:"billingPeriodEnd,omitempty"`
}

func newUsageSummaryResponse(stats *usage.UsageStats, bu *billing.BillingUsage) *UsageSummaryResponse {
	resp := &UsageSummaryResponse{UsageStats: stats, BillingStatus: BillingUnavailable}
	if bu == nil {
		return resp
	}
	resp.BillingStatus = bu.Status
	if !bu.HasIdentity() {
		return resp
	}

	resp.SubscriptionStatus = bu.Status
	resp.TotalAmountDue = &bu.TotalAmountDue
	resp.CurrentUsage = &bu.CurrentUsage
	resp.RatePerMinute = &bu.RatePerMinute
	resp.BillingPeriodStart = bu.BillingPeriodStart
	resp.BillingPeriodEnd = bu.BillingPeriodEnd
	return resp
}

// RecordUsageRequest represents request to append a usage log to a session
type RecordUsageRequest struct {
	UserID          int64 `json:"userId"`
	DurationSeconds int64 `json:"durationSeconds"`
	MessageCount    int64 `json:"messageCount"`
}

// PublishRequest represents request to publish or unpublish an agent
type PublishRequest struct {
	Published bool `json:"published"`
}

// UpdateStatusRequest represents request to move a session to a new status
type UpdateStatusRequest struct {
	Status orgs.SessionStatus `json:"status"`
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Result string `json:"result"`
}
