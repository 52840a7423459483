package usage

import (
	"context"
	"errors"
	"time"
)

// DateLayout is the format of DailyUsage.Date
const DateLayout = "2006-01-02"

// UsageLog is one immutable quantum of billable activity
type UsageLog struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	SessionID       int64     `json:"session_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	MessageCount    int64     `json:"message_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// DailyUsage is the activity for one UTC calendar day
type DailyUsage struct {
	Date     string `json:"date"`
	Seconds  int64  `json:"seconds"`
	Messages int64  `json:"messages"`
}

// UsageStats aggregates every usage log of a user
type UsageStats struct {
	TotalMinutes  int64        `json:"totalMinutes"`
	TotalSeconds  int64        `json:"totalSeconds"`
	TotalMessages int64        `json:"totalMessages"`
	Sessions      int          `json:"sessions"`
	DailyUsage    []DailyUsage `json:"dailyUsage"`
}

// ReportState tracks how much of a user's usage has been reported to one
// metered subscription item. Minutes are counted cumulatively from
// WindowStart, so a partial minute is rounded up once per window rather than
// once per report.
type ReportState struct {
	UserID             int64
	SubscriptionItemID string
	PeriodStart        time.Time
	WindowStart        time.Time
	ReportedMinutes    int64
	ReportedThrough    time.Time
	// Pending is a report handed to the payment provider but not yet confirmed
	Pending *PendingReport
}

// PendingReport is persisted before a report is sent, so a retry after a
// crash sends the same quantity under the same idempotency key.
type PendingReport struct {
	// Minutes is the window's cumulative total once the report is confirmed
	Minutes int64
	Through time.Time
	Key     string
}

// ErrInvalidUsage is returned for negative durations or message counts
var ErrInvalidUsage = errors.New("invalid usage")

// Service defines the usage log store
type Service interface {
	RecordUsage(ctx context.Context, userID, sessionID, durationSeconds, messageCount int64) (*UsageLog, error)
	GetUsageSummary(ctx context.Context, userID int64) (*UsageStats, error)
	SecondsSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	SecondsBetween(ctx context.Context, userID int64, after, through time.Time) (int64, error)
	// ReportCutoff is the database clock minus settle. Reports cover usage up to
	// the cutoff so rows still being inserted fall into the next report.
	ReportCutoff(ctx context.Context, settle time.Duration) (time.Time, error)
	// LockReports takes the user's report lock without waiting. acquired is
	// false when another reconciler holds it; release must be called otherwise.
	LockReports(ctx context.Context, userID int64) (release func(), acquired bool, err error)
	// GetReportState returns nil if the user's usage was never reported
	GetReportState(ctx context.Context, userID int64) (*ReportState, error)
	SaveReportState(ctx context.Context, state ReportState) error
}
