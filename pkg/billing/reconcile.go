package billing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/onramp/pkg/usage"
)

// Reconciler job names, used in logs and metrics
const (
	JobReportUsage = "report_usage"
	JobSyncTiers   = "sync_tiers"
)

// usageRecordNamespace seeds deterministic idempotency keys for usage records
var usageRecordNamespace = uuid.MustParse("6f1b3c2e-8d4a-4f7e-9c5b-2a1d0e3f4b6c")

// fanOut runs fn for each of n tenants with bounded concurrency. A tenant's
// failure is logged and counted; it does not stop the others.
func (r *Reconciler) fanOut(ctx context.Context, job string, n int, tenant func(i int) (int64, string), fn func(ctx context.Context, i int) error) int {
	var failures atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := fn(ctx, i); err != nil {
				id, kind := tenant(i)
				r.logger.WithFields(map[string]any{
					"job": job,
					kind:  id,
				}).WithError(err).Error("Reconciliation failed for tenant")
				failures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failures.Load())
}

// ReportUsage reports each billable user's unreported minutes to their
// metered subscription item. Reports cover usage up to the database clock
// minus the settle interval.
func (r *Reconciler) ReportUsage(ctx context.Context) (err error) {
	start := time.Now()
	failures := 0
	defer func() {
		r.metrics.ObserveReconcilerRun(JobReportUsage, failures, err, time.Since(start))
	}()

	users, err := r.orgs.ListBillableUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list billable users: %w", err)
	}

	through, err := r.usage.ReportCutoff(ctx, r.settle)
	if err != nil {
		return fmt.Errorf("failed to read report cutoff: %w", err)
	}

	failures = r.fanOut(ctx, JobReportUsage, len(users),
		func(i int) (int64, string) { return users[i].ID, "user_id" },
		func(ctx context.Context, i int) error {
			return r.reportUserUsage(ctx, users[i].ID, users[i].StripeCustomerID, through)
		})

	r.logger.WithFields(map[string]any{
		"users":    len(users),
		"through":  through,
		"failures": failures,
	}).Info("Usage report run finished")
	return nil
}

func (r *Reconciler) reportUserUsage(ctx context.Context, userID int64, customerID string, through time.Time) error {
	release, acquired, err := r.usage.LockReports(ctx, userID)
	if err != nil {
		return err
	}
	if !acquired {
		r.logger.WithField("user_id", userID).Debug("Usage report already running elsewhere")
		return nil
	}
	defer release()

	sub, err := r.provider.ActiveSubscription(ctx, customerID)
	if err != nil {
		return err
	}
	if sub == nil || sub.ItemID == "" {
		return nil
	}

	price, err := r.provider.GetPrice(ctx, sub.PriceID)
	if err != nil {
		return err
	}
	if !price.Metered {
		return nil
	}

	previous, err := r.usage.GetReportState(ctx, userID)
	if err != nil {
		return err
	}
	state, dropped := windowFor(previous, userID, sub)
	if dropped != nil {
		r.logger.WithFields(map[string]any{
			"user_id":              userID,
			"subscription_item_id": previous.SubscriptionItemID,
			"minutes":              dropped.Minutes - previous.ReportedMinutes,
		}).Warn("Dropped unconfirmed usage report from a closed billing window")
	}

	// A report sent by an earlier run may or may not have reached the
	// provider. Resending it under its key counts it once either way.
	if state.Pending != nil {
		if err := r.sendPending(ctx, &state); err != nil {
			return err
		}
	}

	if !through.After(state.ReportedThrough) {
		return nil
	}
	seconds, err := r.usage.SecondsBetween(ctx, userID, state.WindowStart, through)
	if err != nil {
		return err
	}

	minutes := usage.CeilMinutes(seconds)
	if minutes <= state.ReportedMinutes {
		state.ReportedThrough = through
		return r.usage.SaveReportState(ctx, state)
	}

	state.Pending = &usage.PendingReport{
		Minutes: minutes,
		Through: through,
		Key:     reportKey(state, minutes),
	}
	if err := r.usage.SaveReportState(ctx, state); err != nil {
		return err
	}
	return r.sendPending(ctx, &state)
}

// sendPending reports the pending delta and records it as confirmed
func (r *Reconciler) sendPending(ctx context.Context, state *usage.ReportState) error {
	pending := state.Pending
	timestamp := pending.Through
	if timestamp.Before(state.PeriodStart) {
		// usage carried over from the previous period is billed in this one
		timestamp = state.PeriodStart
	}
	if err := r.provider.ReportUsage(ctx, UsageRecord{
		SubscriptionItemID: state.SubscriptionItemID,
		Quantity:           pending.Minutes - state.ReportedMinutes,
		Timestamp:          timestamp,
		IdempotencyKey:     pending.Key,
	}); err != nil {
		return err
	}

	state.ReportedMinutes = pending.Minutes
	state.ReportedThrough = pending.Through
	state.Pending = nil
	return r.usage.SaveReportState(ctx, *state)
}

// windowFor returns the state to report sub's usage from. The same item and
// period continue the stored window. Anything else opens a new window at the
// period start, or where reporting left off if that is later or the item is
// unchanged. A pending report of a closed window is returned as dropped; it
// is never resent because the provider rejects usage outside the current period.
func windowFor(previous *usage.ReportState, userID int64, sub *Subscription) (usage.ReportState, *usage.PendingReport) {
	if previous != nil && previous.SubscriptionItemID == sub.ItemID && previous.PeriodStart.Equal(sub.CurrentPeriodStart) {
		return *previous, nil
	}

	state := usage.ReportState{
		UserID:             userID,
		SubscriptionItemID: sub.ItemID,
		PeriodStart:        sub.CurrentPeriodStart,
		WindowStart:        sub.CurrentPeriodStart,
	}
	var dropped *usage.PendingReport
	if previous != nil {
		last := previous.ReportedThrough
		if previous.Pending != nil {
			// its window is closed, so treat it as delivered
			dropped = previous.Pending
			last = dropped.Through
		}
		if previous.SubscriptionItemID == sub.ItemID || last.After(state.WindowStart) {
			state.WindowStart = last
		}
	}
	state.ReportedThrough = state.WindowStart
	return state, dropped
}

// reportKey derives a report's idempotency key from its window and target
// total. It does not depend on when the report runs.
func reportKey(state usage.ReportState, minutes int64) string {
	return uuid.NewSHA1(usageRecordNamespace, []byte(fmt.Sprintf("%d/%s/%d/%d",
		state.UserID, state.SubscriptionItemID, state.WindowStart.UnixNano(), minutes))).String()
}

// SyncTiers corrects organizations whose stored tier differs from the tier
// their active subscription pays for.
func (r *Reconciler) SyncTiers(ctx context.Context) (err error) {
	start := time.Now()
	failures := 0
	defer func() {
		r.metrics.ObserveReconcilerRun(JobSyncTiers, failures, err, time.Since(start))
	}()

	organizations, err := r.orgs.ListBillableOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list billable organizations: %w", err)
	}

	var corrected atomic.Int64
	failures = r.fanOut(ctx, JobSyncTiers, len(organizations),
		func(i int) (int64, string) { return organizations[i].ID, "organization_id" },
		func(ctx context.Context, i int) error {
			org := organizations[i]
			sub, err := r.provider.ActiveSubscription(ctx, org.StripeCustomerID)
			if err != nil {
				return err
			}
			want, err := r.tierFor(sub)
			if err != nil {
				return err
			}
			subscriptionID := ""
			if sub != nil {
				subscriptionID = sub.ID
			}
			if want == org.Tier && subscriptionID == org.StripeSubscriptionID {
				return nil
			}

			if err := r.orgs.SetOrganizationTier(ctx, org.ID, want, subscriptionID); err != nil {
				return err
			}
			r.logger.WithFields(map[string]any{
				"organization_id": org.ID,
				"from":            org.Tier,
				"to":              want,
			}).Warn("Corrected organization tier drift")
			corrected.Add(1)
			return nil
		})

	r.logger.WithFields(map[string]any{
		"organizations": len(organizations),
		"corrected":     corrected.Load(),
		"failures":      failures,
	}).Info("Tier sync run finished")
	return nil
}
