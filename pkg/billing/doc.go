// Package billing reconciles locally recorded usage with the payment provider.
//
// # Overview
//
// Stripe is the source of truth for subscriptions, prices and invoices. This
// package reads that state through the PaymentProvider interface and combines
// it with the usage logs kept by pkg/usage:
//
//   - GetBillingUsage builds the billing half of the usage summary page
//   - HandleWebhook applies subscription changes to organization tiers
//   - ReportUsage pushes metered minutes to the subscription item
//   - SyncTiers corrects drift between stored tiers and active prices
//
// # Billing states
//
// A user without a Stripe customer has no billing identity. A customer without
// an active subscription is inactive. Both are normal states, not errors:
//
//	usage, err := reconciler.GetBillingUsage(ctx, userID)
//	if err != nil {
//		return err // NotFound or Dependency
//	}
//	switch usage.Status {
//	case billing.StatusNoBillingIdentity:
//	case billing.StatusInactive:
//	case billing.StatusActive:
//		fmt.Printf("%.2f %s due\n", usage.TotalAmountDue, usage.Currency)
//	}
//
// The upcoming invoice is an enrichment step. When Stripe fails to project it
// the summary is still returned with TotalAmountDue set to zero and the
// failure is logged at WARN.
//
// # Provider calls
//
// StripeProvider bounds every call with a timeout and retries rate limits,
// server errors and network failures with exponential backoff. Prices are
// cached because Stripe prices are immutable once created.
//
// # Related Packages
//
//   - pkg/orgs: organization tiers and customers
//   - pkg/usage: usage logs and per-user report state
package billing
