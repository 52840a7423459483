// Package usage stores append-only usage logs and aggregates them into
// display summaries.
//
// A usage log records one quantum of billable activity (session seconds and
// message count) for a user and an onboarding session. Logs are never
// updated. Aggregation happens at read time: GetUsageSummary groups a user's
// logs by UTC calendar day and derives totals from the day buckets.
//
// Metered reporting to the payment provider tracks progress in a separate
// report state table rather than marking logs as reported. Each user's
// reports are serialized by a PostgreSQL advisory lock.
package usage
