package models

// StreakSettings configures the daily streak subsystem for one guild.
type StreakSettings struct {
	Enabled         bool           `json:"enabled"`
	StreakThreshold int            `json:"streak_threshold"` // messages per day to qualify; 0 → default
	DayRoles        map[int]string `json:"day_roles"`        // exact streak length → role ID
	OutputChannel   string         `json:"channel_streak_output"`
	GymClassServer  bool           `json:"is_gym_class_server"`
}

// LevelSettings configures the XP/level subsystem for one guild.
type LevelSettings struct {
	Enabled         bool           `json:"enabled"`
	XPPerMessage    float64        `json:"xp_per_message"`   // 0 → default
	LevelMultiplier float64        `json:"level_multiplier"` // 0 → default
	LevelRoles      map[int]string `json:"level_roles"`      // level → role ID
	LevelUpChannel  string         `json:"channel_level_up"`
	LevelUpMessages bool           `json:"level_up_messages"`
}

// LeaderSettings configures the weekly message-leader competition.
type LeaderSettings struct {
	Enabled bool   `json:"enabled"`
	Channel string `json:"channel_message_leader"`
	Role    string `json:"role_message_leader"`
}

// ReportSettings holds the channels the weekly/monthly reports post to.
type ReportSettings struct {
	WeeklyChannel  string `json:"weekly_report_channel"`
	MonthlyChannel string `json:"monthly_report_channel"`
}

// GuildConfig mirrors the external bot-config service for one guild.
// The core only reads it; the config sync worker keeps it fresh.
// A missing row (or missing block) means every subsystem is disabled.
type GuildConfig struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	GuildID string `gorm:"uniqueIndex;not null" json:"guild_id"`

	Streak  StreakSettings `gorm:"serializer:json" json:"streak_system"`
	Level   LevelSettings  `gorm:"serializer:json" json:"level_system"`
	Leader  LeaderSettings `gorm:"serializer:json" json:"message_leader_system"`
	Reports ReportSettings `gorm:"serializer:json" json:"report_settings"`

	Timestamps
}

// Config tuning fallbacks applied when a guild enables a subsystem but
// leaves a numeric field unset.
const (
	DefaultStreakThreshold = 10
	DefaultXPPerMessage    = 1.0
	DefaultLevelMultiplier = 1.5
)

// EffectiveStreakThreshold returns the configured daily threshold or the default.
func (c *GuildConfig) EffectiveStreakThreshold() int {
	if c == nil || c.Streak.StreakThreshold <= 0 {
		return DefaultStreakThreshold
	}
	return c.Streak.StreakThreshold
}

// EffectiveXPPerMessage returns the configured per-message XP or the default.
func (c *GuildConfig) EffectiveXPPerMessage() float64 {
	if c == nil || c.Level.XPPerMessage <= 0 {
		return DefaultXPPerMessage
	}
	return c.Level.XPPerMessage
}

// EffectiveLevelMultiplier returns the configured level multiplier or the default.
func (c *GuildConfig) EffectiveLevelMultiplier() float64 {
	if c == nil || c.Level.LevelMultiplier <= 0 {
		return DefaultLevelMultiplier
	}
	return c.Level.LevelMultiplier
}
