package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/observability"
)

// StripeOptions configures a StripeProvider
type StripeOptions struct {
	APIKey        string
	WebhookSecret string
	// BaseURL overrides https://api.stripe.com
	BaseURL       string
	HTTPClient    *http.Client
	CallTimeout   time.Duration
	MaxRetries    int
	PriceCacheTTL time.Duration
	PriceCacheMax int
	Metrics       *observability.Metrics
}

// subscriptionPageSize is how many subscriptions one list request returns
const subscriptionPageSize = 10

// StripeProvider implements PaymentProvider with the Stripe API
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
	maxRetries    int
	prices        *expirable.LRU[string, *Price]
	metrics       *observability.Metrics
}

// NewStripeProvider creates a Stripe client. The SDK's own retries are
// disabled; calls are retried here within the call timeout.
func NewStripeProvider(opts StripeOptions) *StripeProvider {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.PriceCacheMax <= 0 {
		opts.PriceCacheMax = 256
	}
	if opts.PriceCacheTTL <= 0 {
		opts.PriceCacheTTL = 15 * time.Minute
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        opts.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if opts.BaseURL != "" {
		backendConfig.URL = stripe.String(opts.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	return &StripeProvider{
		api: client.New(opts.APIKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		webhookSecret: opts.WebhookSecret,
		timeout:       opts.CallTimeout,
		maxRetries:    opts.MaxRetries,
		prices:        expirable.NewLRU[string, *Price](opts.PriceCacheMax, nil, opts.PriceCacheTTL),
		metrics:       opts.Metrics,
	}
}

// transient reports whether a failed call may succeed when repeated
func transient(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// call runs fn under the call timeout, retrying transient failures. A missing
// resource is reported as NotFound for ref, which names what op looked up.
func (p *StripeProvider) call(ctx context.Context, op string, ref resourceRef, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if err != nil && !transient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(p.maxRetries+1)),
	)
	p.metrics.ObserveProviderCall(op, err, time.Since(start))
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return apperr.NotFound(ref.kind, ref.id)
	}
	return apperr.Dependency("stripe", op, err)
}

// resourceRef names the Stripe object a call is about
type resourceRef struct {
	kind string
	id   string
}

func toSubscription(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: time.Unix(s.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(s.CurrentPeriodEnd, 0).UTC(),
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		sub.ItemID = item.ID
		if item.Price != nil {
			sub.PriceID = item.Price.ID
		}
	}
	return sub
}

// ActiveSubscription returns the customer's first active or trialing
// subscription. Stripe filters on a single status, so every subscription is
// listed and filtered here.
func (p *StripeProvider) ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	var found *Subscription
	err := p.call(ctx, "list_subscriptions", resourceRef{"customer", customerID}, func(ctx context.Context) error {
		found = nil
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String("all"),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(subscriptionPageSize)

		iter := p.api.Subscriptions.List(params)
		for iter.Next() {
			if sub := toSubscription(iter.Subscription()); sub.Entitled() {
				found = sub
				break
			}
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// GetPrice retrieves a price, served from cache when possible
func (p *StripeProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	if price, ok := p.prices.Get(priceID); ok {
		return price, nil
	}

	var price *Price
	err := p.call(ctx, "get_price", resourceRef{"price", priceID}, func(ctx context.Context) error {
		params := &stripe.PriceParams{}
		params.Context = ctx
		sp, err := p.api.Prices.Get(priceID, params)
		if err != nil {
			return err
		}
		price = &Price{
			ID:         sp.ID,
			UnitAmount: sp.UnitAmountDecimal,
			Currency:   string(sp.Currency),
			Metered:    sp.Recurring != nil && sp.Recurring.UsageType == stripe.PriceRecurringUsageTypeMetered,
		}
		if price.UnitAmount == 0 {
			price.UnitAmount = float64(sp.UnitAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.prices.Add(priceID, price)
	return price, nil
}

// UpcomingInvoice projects the customer's next invoice
func (p *StripeProvider) UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	var invoice *Invoice
	err := p.call(ctx, "upcoming_invoice", resourceRef{"customer", customerID}, func(ctx context.Context) error {
		params := &stripe.InvoiceUpcomingParams{Customer: stripe.String(customerID)}
		params.Context = ctx
		si, err := p.api.Invoices.Upcoming(params)
		if err != nil {
			return err
		}
		invoice = &Invoice{AmountDue: si.AmountDue, Currency: string(si.Currency)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ReportUsage increments a metered subscription item. The idempotency key
// makes a retried report count once.
func (p *StripeProvider) ReportUsage(ctx context.Context, record UsageRecord) error {
	return p.call(ctx, "report_usage", resourceRef{"subscription item", record.SubscriptionItemID}, func(ctx context.Context) error {
		params := &stripe.UsageRecordParams{
			SubscriptionItem: stripe.String(record.SubscriptionItemID),
			Quantity:         stripe.Int64(record.Quantity),
			Timestamp:        stripe.Int64(record.Timestamp.Unix()),
			Action:           stripe.String("increment"),
		}
		params.Context = ctx
		params.SetIdempotencyKey(record.IdempotencyKey)
		_, err := p.api.UsageRecords.New(params)
		return err
	})
}

// ParseWebhook verifies a Stripe-Signature header and decodes the event
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if p.webhookSecret == "" {
		return nil, apperr.Configuration("stripe webhook secret is not configured")
	}

	se, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: se.ID, Type: string(se.Type)}
	if strings.HasPrefix(event.Type, "customer.subscription.") && se.Data != nil {
		var s stripe.Subscription
		if err := json.Unmarshal(se.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		event.Subscription = toSubscription(&s)
	}
	return event, nil
}
