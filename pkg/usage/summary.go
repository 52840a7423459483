package usage

import (
	"sort"
)

// CeilMinutes converts seconds to whole minutes, rounding any partial minute up
func CeilMinutes(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

// buildStats derives totals from day buckets so totals always equal the bucket sums
func buildStats(daily []DailyUsage, sessions int) *UsageStats {
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })

	stats := &UsageStats{
		Sessions:   sessions,
		DailyUsage: daily,
	}
	for _, day := range daily {
		stats.TotalSeconds += day.Seconds
		stats.TotalMessages += day.Messages
	}
	stats.TotalMinutes = CeilMinutes(stats.TotalSeconds)
	return stats
}
