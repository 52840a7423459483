package billing

import (
	"context"
	"io"
	"time"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/tiers"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// StepUpcomingInvoice names the enrichment step that may be defaulted
const StepUpcomingInvoice = "upcoming_invoice"

// DefaultSettleInterval is how far usage reports trail the database clock
const DefaultSettleInterval = 2 * time.Minute

// Options configures a Reconciler
type Options struct {
	// PriceTiers maps provider price IDs to tiers
	PriceTiers map[string]tiers.Tier
	// Concurrency bounds per-tenant fan-out in ReportUsage and SyncTiers
	Concurrency int
	// SettleInterval holds back the newest usage from a report so rows still
	// being inserted are counted by the next one. Defaults to DefaultSettleInterval.
	SettleInterval time.Duration
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Reconciler cross-references local usage with the payment provider
type Reconciler struct {
	orgs        orgs.Service
	usage       usage.Service
	provider    PaymentProvider
	events      EventStore
	priceTiers  map[string]tiers.Tier
	concurrency int
	settle      time.Duration
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewReconciler creates a Reconciler
func NewReconciler(orgService orgs.Service, usageService usage.Service, provider PaymentProvider, events EventStore, opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.SettleInterval <= 0 {
		opts.SettleInterval = DefaultSettleInterval
	}
	priceTiers := make(map[string]tiers.Tier, len(opts.PriceTiers))
	for price, tier := range opts.PriceTiers {
		priceTiers[price] = tier
	}

	return &Reconciler{
		orgs:        orgService,
		usage:       usageService,
		provider:    provider,
		events:      events,
		priceTiers:  priceTiers,
		concurrency: opts.Concurrency,
		settle:      opts.SettleInterval,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// GetBillingUsage summarizes the user's current billing period. A user with
// no customer on file, or no active subscription, is a valid result rather
// than an error. Only the upcoming invoice is allowed to fail; its amount
// then defaults to zero.
func (r *Reconciler) GetBillingUsage(ctx context.Context, userID int64) (*BillingUsage, error) {
	user, err := r.orgs.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		return &BillingUsage{Status: StatusNoBillingIdentity}, nil
	}

	sub, err := r.provider.ActiveSubscription(ctx, user.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &BillingUsage{Status: StatusInactive}, nil
	}

	price, err := r.provider.GetPrice(ctx, sub.PriceID)
	if err != nil {
		return nil, err
	}

	seconds, err := r.usage.SecondsSince(ctx, userID, sub.CurrentPeriodStart)
	if err != nil {
		return nil, err
	}

	periodStart, periodEnd := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	result := &BillingUsage{
		Status:             StatusActive,
		SubscriptionID:     sub.ID,
		CurrentUsage:       usage.CeilMinutes(seconds),
		RatePerMinute:      majorUnits(price.UnitAmount, price.Currency),
		BillingPeriodStart: &periodStart,
		BillingPeriodEnd:   &periodEnd,
		Currency:           price.Currency,
	}

	invoice, err := r.provider.UpcomingInvoice(ctx, user.StripeCustomerID)
	if err != nil {
		partial := &apperr.PartialEnrichmentError{Step: StepUpcomingInvoice, Err: err}
		r.logger.WithFields(map[string]any{
			"user_id":         userID,
			"subscription_id": sub.ID,
		}).WithError(partial).Warn("Billing usage returned without upcoming invoice")
		r.metrics.ObserveEnrichmentFailure(StepUpcomingInvoice)
		return result, nil
	}
	result.TotalAmountDue = majorUnits(float64(invoice.AmountDue), invoice.Currency)
	return result, nil
}

// tierFor maps a subscription onto the tier it pays for. Subscriptions that
// are not active or trialing pay for nothing beyond BASIC.
func (r *Reconciler) tierFor(sub *Subscription) (tiers.Tier, error) {
	if sub == nil || !sub.Entitled() {
		return tiers.TierBasic, nil
	}
	tier, ok := r.priceTiers[sub.PriceID]
	if !ok {
		return "", apperr.Configuration("no tier configured for price %q", sub.PriceID)
	}
	return tier, nil
}

// HandleWebhook verifies and applies a provider event, returning the
// delivery result. Redelivered events are acknowledged without being applied again.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	event, err := r.provider.ParseWebhook(payload, signature)
	if err != nil {
		r.metrics.ObserveWebhook("unverified", WebhookFailed)
		return WebhookFailed, err
	}

	logger := observability.FromContext(ctx).WithFields(map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	seen, err := r.events.Seen(ctx, event.ID)
	if err != nil {
		r.metrics.ObserveWebhook(event.Type, WebhookFailed)
		return WebhookFailed, err
	}
	if seen {
		logger.Debug("Duplicate webhook delivery")
		r.metrics.ObserveWebhook(event.Type, WebhookDuplicate)
		return WebhookDuplicate, nil
	}

	result := WebhookApplied
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		result, err = r.applySubscription(ctx, event.Subscription, false)
	case EventSubscriptionDeleted:
		result, err = r.applySubscription(ctx, event.Subscription, true)
	default:
		result = WebhookIgnored
	}
	if err != nil {
		logger.WithError(err).Error("Failed to apply webhook")
		r.metrics.ObserveWebhook(event.Type, WebhookFailed)
		return WebhookFailed, err
	}

	if err := r.events.Record(ctx, event.ID, event.Type); err != nil {
		r.metrics.ObserveWebhook(event.Type, WebhookFailed)
		return WebhookFailed, err
	}

	logger.WithField("result", result).Info("Webhook processed")
	r.metrics.ObserveWebhook(event.Type, result)
	return result, nil
}

// applySubscription moves the customer's organization to the tier sub pays
// for. An event that ends a subscription other than the one the organization
// is on is ignored, so a replaced subscription cannot downgrade its successor.
func (r *Reconciler) applySubscription(ctx context.Context, sub *Subscription, deleted bool) (string, error) {
	if sub == nil || sub.CustomerID == "" {
		return WebhookFailed, apperr.Configuration("subscription event without customer")
	}

	org, err := r.orgs.GetOrganizationByCustomer(ctx, sub.CustomerID)
	if err != nil {
		return WebhookFailed, err
	}

	logger := observability.FromContext(ctx).WithFields(map[string]any{
		"organization_id": org.ID,
		"subscription_id": sub.ID,
	})
	ending := deleted || !sub.Entitled()
	if ending && org.StripeSubscriptionID != "" && sub.ID != org.StripeSubscriptionID {
		logger.WithField("current_subscription_id", org.StripeSubscriptionID).
			Info("Ignored end of a replaced subscription")
		return WebhookIgnored, nil
	}

	tier, subscriptionID := tiers.TierBasic, ""
	if !deleted {
		if tier, err = r.tierFor(sub); err != nil {
			return WebhookFailed, err
		}
		subscriptionID = sub.ID
	}

	if err := r.orgs.SetOrganizationTier(ctx, org.ID, tier, subscriptionID); err != nil {
		return WebhookFailed, err
	}
	logger.WithField("tier", tier).Info("Organization tier updated from billing")
	return WebhookApplied, nil
}
