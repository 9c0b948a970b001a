package store

import (
	"time"

	"community-engagement-system/models"
)

// FieldPatch is a typed partial update for UserEngagement. Nil fields are
// left untouched. Only known fields can be patched, and the metric-index
// fan-out is derived from the same declarations.
type FieldPatch struct {
	Streak        *int
	HighestStreak *int
	Threshold     *int
	ReceivedDaily *bool

	Messages      *int64
	TotalMessages *int64

	TotalXP *float64
	Level   *int

	MessageLeaderWins     *int
	CurrentLeaderStreak   *int
	MostConsecutiveLeader *int

	ActiveDaysCount       *int
	LongestInactivePeriod *int
	DaysTracked           *int
	AverageMessagesPerDay *float64

	LastStreakLoss   *time.Time
	LastMessageAt    *time.Time
	LastActivityDate *time.Time
}

// Columns maps set fields to their database column assignments.
func (p FieldPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Streak != nil {
		cols["streak"] = *p.Streak
	}
	if p.HighestStreak != nil {
		cols["highest_streak"] = *p.HighestStreak
	}
	if p.Threshold != nil {
		cols["threshold"] = *p.Threshold
	}
	if p.ReceivedDaily != nil {
		cols["received_daily"] = *p.ReceivedDaily
	}
	if p.Messages != nil {
		cols["messages"] = *p.Messages
	}
	if p.TotalMessages != nil {
		cols["total_messages"] = *p.TotalMessages
	}
	if p.TotalXP != nil {
		cols["total_xp"] = *p.TotalXP
	}
	if p.Level != nil {
		cols["level"] = *p.Level
	}
	if p.MessageLeaderWins != nil {
		cols["message_leader_wins"] = *p.MessageLeaderWins
	}
	if p.CurrentLeaderStreak != nil {
		cols["current_leader_streak"] = *p.CurrentLeaderStreak
	}
	if p.MostConsecutiveLeader != nil {
		cols["most_consecutive_leader"] = *p.MostConsecutiveLeader
	}
	if p.ActiveDaysCount != nil {
		cols["active_days_count"] = *p.ActiveDaysCount
	}
	if p.LongestInactivePeriod != nil {
		cols["longest_inactive_period"] = *p.LongestInactivePeriod
	}
	if p.DaysTracked != nil {
		cols["days_tracked"] = *p.DaysTracked
	}
	if p.AverageMessagesPerDay != nil {
		cols["average_messages_per_day"] = *p.AverageMessagesPerDay
	}
	if p.LastStreakLoss != nil {
		cols["last_streak_loss"] = *p.LastStreakLoss
	}
	if p.LastMessageAt != nil {
		cols["last_message_at"] = *p.LastMessageAt
	}
	if p.LastActivityDate != nil {
		cols["last_activity_date"] = *p.LastActivityDate
	}
	return cols
}

// ChangedMetrics lists the tracked metrics whose backing field this patch
// touches, paired with the new values, for index fan-out.
func (p FieldPatch) ChangedMetrics() map[string]float64 {
	out := map[string]float64{}
	if p.Streak != nil {
		out[models.MetricStreak] = float64(*p.Streak)
	}
	if p.HighestStreak != nil {
		out[models.MetricHighestStreak] = float64(*p.HighestStreak)
	}
	if p.Messages != nil {
		out[models.MetricMessages] = float64(*p.Messages)
	}
	if p.TotalXP != nil {
		out[models.MetricTotalXP] = *p.TotalXP
	}
	if p.Level != nil {
		out[models.MetricLevel] = float64(*p.Level)
	}
	if p.MessageLeaderWins != nil {
		out[models.MetricMessageLeaderWins] = float64(*p.MessageLeaderWins)
	}
	if p.MostConsecutiveLeader != nil {
		out[models.MetricMostConsecutiveLeader] = float64(*p.MostConsecutiveLeader)
	}
	if p.ActiveDaysCount != nil {
		out[models.MetricActiveDaysCount] = float64(*p.ActiveDaysCount)
	}
	if p.LongestInactivePeriod != nil {
		out[models.MetricLongestInactivePeriod] = float64(*p.LongestInactivePeriod)
	}
	if p.AverageMessagesPerDay != nil {
		out[models.MetricAverageMessagesPerDay] = *p.AverageMessagesPerDay
	}
	return out
}

// Apply mutates u in place with the patch's set fields (used by the
// in-memory store; the gorm store updates columns directly).
func (p FieldPatch) Apply(u *models.UserEngagement) {
	if p.Streak != nil {
		u.Streak = *p.Streak
	}
	if p.HighestStreak != nil {
		u.HighestStreak = *p.HighestStreak
	}
	if p.Threshold != nil {
		u.Threshold = *p.Threshold
	}
	if p.ReceivedDaily != nil {
		u.ReceivedDaily = *p.ReceivedDaily
	}
	if p.Messages != nil {
		u.Messages = *p.Messages
	}
	if p.TotalMessages != nil {
		u.TotalMessages = *p.TotalMessages
	}
	if p.TotalXP != nil {
		u.TotalXP = *p.TotalXP
	}
	if p.Level != nil {
		u.Level = *p.Level
	}
	if p.MessageLeaderWins != nil {
		u.MessageLeaderWins = *p.MessageLeaderWins
	}
	if p.CurrentLeaderStreak != nil {
		u.CurrentLeaderStreak = *p.CurrentLeaderStreak
	}
	if p.MostConsecutiveLeader != nil {
		u.MostConsecutiveLeader = *p.MostConsecutiveLeader
	}
	if p.ActiveDaysCount != nil {
		u.ActiveDaysCount = *p.ActiveDaysCount
	}
	if p.LongestInactivePeriod != nil {
		u.LongestInactivePeriod = *p.LongestInactivePeriod
	}
	if p.DaysTracked != nil {
		u.DaysTracked = *p.DaysTracked
	}
	if p.AverageMessagesPerDay != nil {
		u.AverageMessagesPerDay = *p.AverageMessagesPerDay
	}
	if p.LastStreakLoss != nil {
		t := *p.LastStreakLoss
		u.LastStreakLoss = &t
	}
	if p.LastMessageAt != nil {
		t := *p.LastMessageAt
		u.LastMessageAt = &t
	}
	if p.LastActivityDate != nil {
		t := *p.LastActivityDate
		u.LastActivityDate = &t
	}
}

// Small helpers for building patches inline.

func IntPtr(v int) *int              { return &v }
func TimePtr(v time.Time) *time.Time { return &v }
