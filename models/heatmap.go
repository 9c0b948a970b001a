package models

// HeatmapBucket is one per-day message count for a user in a guild.
// The bucket for the current day is mutable; older buckets are append-only.
type HeatmapBucket struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	GuildID  string `gorm:"uniqueIndex:idx_heatmap_day;not null" json:"guild_id"`
	UserID   string `gorm:"uniqueIndex:idx_heatmap_day;not null" json:"user_id"`
	Date     string `gorm:"uniqueIndex:idx_heatmap_day;not null" json:"date"` // UTC day, "2006-01-02"
	Messages int64  `json:"messages" gorm:"default:0"`

	Timestamps
}
