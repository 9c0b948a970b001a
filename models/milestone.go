package models

import "time"

// Milestone is an append-only achievement log entry (e.g., "30-day streak").
type Milestone struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	GuildID   string    `gorm:"index:idx_milestone_user;not null" json:"guild_id"`
	UserID    string    `gorm:"index:idx_milestone_user;not null" json:"user_id"`
	Name      string    `gorm:"not null" json:"milestone"`
	Slug      string    `json:"slug"`
	ReachedAt time.Time `json:"date"`

	Timestamps
}
