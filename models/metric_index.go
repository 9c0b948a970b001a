package models

import "time"

// Tracked metric names — the closed set the metric index maintains.
// Leaderboard queries for anything outside this set return empty results.
const (
	MetricStreak                = "streak"
	MetricMessages              = "messages"
	MetricHighestStreak         = "highestStreak"
	MetricMessageLeaderWins     = "messageLeaderWins"
	MetricLevel                 = "level"
	MetricTotalXP               = "totalXp"
	MetricActiveDaysCount       = "activeDaysCount"
	MetricLongestInactivePeriod = "longestInactivePeriod"
	MetricMostConsecutiveLeader = "mostConsecutiveLeader"
	MetricAverageMessagesPerDay = "averageMessagesPerDay"
)

// TrackedMetrics lists every metric the index mirrors from UserEngagement.
var TrackedMetrics = []string{
	MetricStreak,
	MetricMessages,
	MetricHighestStreak,
	MetricMessageLeaderWins,
	MetricLevel,
	MetricTotalXP,
	MetricActiveDaysCount,
	MetricLongestInactivePeriod,
	MetricMostConsecutiveLeader,
	MetricAverageMessagesPerDay,
}

// IsTrackedMetric reports whether name belongs to the closed metric set.
func IsTrackedMetric(name string) bool {
	for _, m := range TrackedMetrics {
		if m == name {
			return true
		}
	}
	return false
}

// MetricValue reads the current value of a tracked metric off a user record.
// Unknown names return 0 — callers validate with IsTrackedMetric first.
func MetricValue(u *UserEngagement, metric string) float64 {
	switch metric {
	case MetricStreak:
		return float64(u.Streak)
	case MetricMessages:
		return float64(u.Messages)
	case MetricHighestStreak:
		return float64(u.HighestStreak)
	case MetricMessageLeaderWins:
		return float64(u.MessageLeaderWins)
	case MetricLevel:
		return float64(u.Level)
	case MetricTotalXP:
		return u.TotalXP
	case MetricActiveDaysCount:
		return float64(u.ActiveDaysCount)
	case MetricLongestInactivePeriod:
		return float64(u.LongestInactivePeriod)
	case MetricMostConsecutiveLeader:
		return float64(u.MostConsecutiveLeader)
	case MetricAverageMessagesPerDay:
		return u.AverageMessagesPerDay
	}
	return 0
}

// MetricIndexRecord is the denormalized ranking projection: one row per
// (guild, metric, user), kept in step with UserEngagement on every save.
type MetricIndexRecord struct {
	ID      uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	GuildID string  `gorm:"uniqueIndex:idx_guild_metric_user;index:idx_metric_rank;not null" json:"guild_id"`
	Metric  string  `gorm:"uniqueIndex:idx_guild_metric_user;index:idx_metric_rank;not null" json:"metric"`
	UserID  string  `gorm:"uniqueIndex:idx_guild_metric_user;not null" json:"user_id"`
	Value   float64 `gorm:"index:idx_metric_rank" json:"value"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
