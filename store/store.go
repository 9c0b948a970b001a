package store

import (
	"context"

	"community-engagement-system/models"
)

// MetricEntry is one ranked row returned from the metric index.
type MetricEntry struct {
	UserID string  `json:"user_id"`
	Value  float64 `json:"value"`
}

// BatchResult aggregates the outcome of a chunked batch write.
type BatchResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// GuildActivity is the monthly aggregate over a guild's heatmap.
type GuildActivity struct {
	TotalMessages int64 `json:"total_messages"`
	ActiveUsers   int64 `json:"active_users"`
}

// RecordStore is the persistence boundary for engagement state. The
// production implementation is GormStore; MemoryStore backs tests and
// local runs. Implementations fan writes out to the metric index so the
// leaderboard read path never scans primary records.
type RecordStore interface {
	// GetUser returns (nil, nil) when no record exists.
	GetUser(ctx context.Context, guildID, userID string) (*models.UserEngagement, error)
	// PutUser saves the full record and refreshes every tracked metric
	// in the index (this is also the opportunistic index repair path).
	PutUser(ctx context.Context, u *models.UserEngagement) error
	// UpdateUserFields applies a typed partial update. A missing record
	// is a no-op, not an error.
	UpdateUserFields(ctx context.Context, guildID, userID string, patch FieldPatch) error
	// ForEachUser pages through all of a guild's users in batches,
	// ordered by user ID so concurrent writes cannot drop users between
	// pages. Returning an error from fn stops the scan.
	ForEachUser(ctx context.Context, guildID string, batchSize int, fn func([]models.UserEngagement) error) error
	// ListGuilds returns every guild that has at least one user record.
	ListGuilds(ctx context.Context) ([]string, error)

	// QueryMetric reads the ranked projection, descending by value.
	// Unknown metrics yield an empty result, not an error.
	QueryMetric(ctx context.Context, guildID, metric string, limit int) ([]MetricEntry, error)
	// BatchResetMetric sets one metric-backing field to a fixed value for
	// many users, chunked with bounded retry; per-chunk failures are
	// counted rather than aborting the batch.
	BatchResetMetric(ctx context.Context, guildID string, userIDs []string, metric string, value float64) (BatchResult, error)

	// TouchHeatmap upserts the per-day bucket. delta 0 only ensures the
	// bucket exists (used by the daily rollover's zero-fill).
	TouchHeatmap(ctx context.Context, guildID, userID, date string, delta int64) error
	AppendMilestone(ctx context.Context, m *models.Milestone) error
	// GuildActivitySince aggregates heatmap buckets on/after the given
	// day key.
	GuildActivitySince(ctx context.Context, guildID, sinceDate string) (GuildActivity, error)

	GetJobState(ctx context.Context, name string) (*models.JobState, error)
	PutJobState(ctx context.Context, s *models.JobState) error
}

// Batch tuning shared by implementations.
const (
	BatchChunkSize  = 25
	BatchMaxRetries = 5
)
