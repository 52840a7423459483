package billing

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSignature is returned when a webhook fails signature verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Status describes how far a user's billing identity resolves
type Status string

const (
	StatusNoBillingIdentity Status = "no_billing_identity"
	StatusInactive          Status = "inactive"
	StatusActive            Status = "active"
)

// BillingUsage is the payment provider's view of a user's current period.
// Amounts are in major currency units.
type BillingUsage struct {
	Status             Status     `json:"status"`
	SubscriptionID     string     `json:"subscriptionId,omitempty"`
	CurrentUsage       int64      `json:"currentUsage"`
	RatePerMinute      float64    `json:"ratePerMinute"`
	TotalAmountDue     float64    `json:"totalAmountDue"`
	BillingPeriodStart *time.Time `json:"billingPeriodStart,omitempty"`
	BillingPeriodEnd   *time.Time `json:"billingPeriodEnd,omitempty"`
	Currency           string     `json:"currency,omitempty"`
}

// HasIdentity reports whether the user is known to the payment provider
func (b *BillingUsage) HasIdentity() bool {
	return b.Status != StatusNoBillingIdentity
}

// Subscription is the subset of a provider subscription the reconciler reads
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	// ItemID and PriceID come from the first subscription item
	ItemID             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// Entitled reports whether the subscription currently pays for its tier
func (s *Subscription) Entitled() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// Price is a per-unit rate. UnitAmount is in minor currency units.
type Price struct {
	ID         string
	UnitAmount float64
	Currency   string
	Metered    bool
}

// Invoice is a projected or issued invoice. AmountDue is in minor currency units.
type Invoice struct {
	AmountDue int64
	Currency  string
}

// UsageRecord is a quantity reported against a metered subscription item
type UsageRecord struct {
	SubscriptionItemID string
	Quantity           int64
	Timestamp          time.Time
	IdempotencyKey     string
}

// Event is a verified webhook delivery
type Event struct {
	ID   string
	Type string
	// Subscription is set for customer.subscription.* events
	Subscription *Subscription
}

// Webhook event types the reconciler acts on
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Webhook results, used as metric labels
const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "failed"
)

// PaymentProvider is the external billing system. Every method is safe to call
// independently; none relies on another having been called first.
type PaymentProvider interface {
	// ActiveSubscription returns the customer's active or trialing
	// subscription, or nil if there is none
	ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error)
	GetPrice(ctx context.Context, priceID string) (*Price, error)
	UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error)
	ReportUsage(ctx context.Context, record UsageRecord) error
	// ParseWebhook verifies the signature header and decodes the event
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// EventStore remembers processed webhook deliveries
type EventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string) error
}

// Service defines the billing operations exposed to the API
type Service interface {
	GetBillingUsage(ctx context.Context, userID int64) (*BillingUsage, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error)
}

// zeroDecimal lists currencies Stripe amounts in whole units
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// majorUnits converts a Stripe amount to major currency units
func majorUnits(amount float64, currency string) float64 {
	if zeroDecimal[currency] {
		return amount
	}
	return amount / 100
}
