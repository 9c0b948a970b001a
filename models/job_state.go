package models

import "time"

// Rollover job names persisted in JobState.
const (
	JobDailyRollover   = "daily_rollover"
	JobWeeklyRollover  = "weekly_rollover"
	JobMonthlyRollover = "monthly_rollover"
)

// JobState persists scheduler progress so a restarted process recomputes
// its delay from the stored next-run timestamp instead of re-running (or
// skipping) a period. LastRunAt doubles as the per-period idempotency guard.
type JobState struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	Name      string     `gorm:"uniqueIndex;not null" json:"name"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	Timestamps
}
