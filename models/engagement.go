package models

import (
	"time"

	"gorm.io/gorm"
)

// UserEngagement tracks per-guild engagement state for each user (denormalized for performance)
type UserEngagement struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	GuildID string `gorm:"uniqueIndex:idx_guild_user;not null" json:"guild_id"`
	UserID  string `gorm:"uniqueIndex:idx_guild_user;not null" json:"user_id"` // platform user ID from the gateway

	// Streak system
	Streak         int        `json:"streak" gorm:"default:0"`
	HighestStreak  int        `json:"highest_streak" gorm:"default:0"` // invariant: always >= Streak
	Threshold      int        `json:"threshold" gorm:"default:0"`      // qualifying messages still needed today
	ReceivedDaily  bool       `json:"received_daily" gorm:"default:false"`
	LastStreakLoss *time.Time `json:"last_streak_loss,omitempty"`

	// Message counters
	Messages      int64 `json:"messages" gorm:"default:0"`       // weekly counter, reset by weekly rollover
	TotalMessages int64 `json:"total_messages" gorm:"default:0"` // lifetime, never decremented

	// Level system
	TotalXP float64 `json:"total_xp" gorm:"default:0"`
	Level   int     `json:"level" gorm:"default:0"`

	// Message-leader competition
	MessageLeaderWins     int `json:"message_leader_wins" gorm:"default:0"`
	CurrentLeaderStreak   int `json:"current_leader_streak" gorm:"default:0"`
	MostConsecutiveLeader int `json:"most_consecutive_leader" gorm:"default:0"`

	// Activity analytics (recomputed by the daily rollover)
	ActiveDaysCount       int     `json:"active_days_count" gorm:"default:0"`
	LongestInactivePeriod int     `json:"longest_inactive_period" gorm:"default:0"` // days
	DaysTracked           int     `json:"days_tracked" gorm:"default:0"`
	AverageMessagesPerDay float64 `json:"average_messages_per_day" gorm:"default:0"`

	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"` // start of the last UTC day with any messages

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// DayKey formats a timestamp as the UTC day bucket key used by the heatmap.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DayStart truncates a timestamp to the start of its UTC day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
