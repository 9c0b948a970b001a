package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"community-engagement-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the production RecordStore on top of gorm/postgres.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) GetUser(ctx context.Context, guildID, userID string) (*models.UserEngagement, error) {
	var u models.UserEngagement
	err := s.DB.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s/%s: %w", guildID, userID, err)
	}
	return &u, nil
}

func (s *GormStore) PutUser(ctx context.Context, u *models.UserEngagement) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.DB.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("save user %s/%s: %w", u.GuildID, u.UserID, err)
	}

	// Full save refreshes every tracked metric — this is also the read
	// repair path for index rows left behind by a failed partial fan-out.
	values := map[string]float64{}
	for _, metric := range models.TrackedMetrics {
		values[metric] = models.MetricValue(u, metric)
	}
	s.fanOutIndex(ctx, u.GuildID, u.UserID, values)
	return nil
}

func (s *GormStore) UpdateUserFields(ctx context.Context, guildID, userID string, patch FieldPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	res := s.DB.WithContext(ctx).
		Model(&models.UserEngagement{}).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update user %s/%s: %w", guildID, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Missing record on a partial update is "nothing to do".
		return nil
	}
	s.fanOutIndex(ctx, guildID, userID, patch.ChangedMetrics())
	return nil
}

// fanOutIndex upserts index rows for the given metric values. Failures are
// logged, not returned — the index is eventually consistent with the
// primary record and repaired on the next full save.
func (s *GormStore) fanOutIndex(ctx context.Context, guildID, userID string, values map[string]float64) {
	if len(values) == 0 {
		return
	}
	rows := make([]models.MetricIndexRecord, 0, len(values))
	for metric, value := range values {
		rows = append(rows, models.MetricIndexRecord{
			GuildID: guildID,
			Metric:  metric,
			UserID:  userID,
			Value:   value,
		})
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "metric"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		log.Printf("[STORE] ⚠️ Metric index fan-out failed for %s/%s (%d metrics): %v",
			guildID, userID, len(rows), err)
	}
}

func (s *GormStore) ForEachUser(ctx context.Context, guildID string, batchSize int, fn func([]models.UserEngagement) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	// Keyset pagination on user_id: stable under concurrent writes, so a
	// user can't slip between pages the way offset scans allow.
	lastUserID := ""
	for {
		var batch []models.UserEngagement
		err := s.DB.WithContext(ctx).
			Where("guild_id = ? AND user_id > ?", guildID, lastUserID).
			Order("user_id ASC").
			Limit(batchSize).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("scan users of guild %s: %w", guildID, err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastUserID = batch[len(batch)-1].UserID
	}
}

func (s *GormStore) ListGuilds(ctx context.Context) ([]string, error) {
	var guilds []string
	err := s.DB.WithContext(ctx).
		Model(&models.UserEngagement{}).
		Distinct("guild_id").
		Pluck("guild_id", &guilds).Error
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	return guilds, nil
}

func (s *GormStore) QueryMetric(ctx context.Context, guildID, metric string, limit int) ([]MetricEntry, error) {
	if !models.IsTrackedMetric(metric) {
		return []MetricEntry{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	var entries []MetricEntry
	err := s.DB.WithContext(ctx).
		Model(&models.MetricIndexRecord{}).
		Select("user_id", "value").
		Where("guild_id = ? AND metric = ?", guildID, metric).
		Order("value DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query metric %s for guild %s: %w", metric, guildID, err)
	}
	return entries, nil
}

// metricColumn maps a tracked metric to its backing column on
// user_engagements. Only metrics with a direct backing column can be
// batch-reset.
func metricColumn(metric string) (string, bool) {
	switch metric {
	case models.MetricStreak:
		return "streak", true
	case models.MetricMessages:
		return "messages", true
	case models.MetricHighestStreak:
		return "highest_streak", true
	case models.MetricMessageLeaderWins:
		return "message_leader_wins", true
	case models.MetricLevel:
		return "level", true
	case models.MetricTotalXP:
		return "total_xp", true
	case models.MetricActiveDaysCount:
		return "active_days_count", true
	case models.MetricLongestInactivePeriod:
		return "longest_inactive_period", true
	case models.MetricMostConsecutiveLeader:
		return "most_consecutive_leader", true
	case models.MetricAverageMessagesPerDay:
		return "average_messages_per_day", true
	}
	return "", false
}

func (s *GormStore) BatchResetMetric(ctx context.Context, guildID string, userIDs []string, metric string, value float64) (BatchResult, error) {
	var result BatchResult
	column, ok := metricColumn(metric)
	if !ok {
		return result, fmt.Errorf("metric %q cannot be batch-reset", metric)
	}

	for start := 0; start < len(userIDs); start += BatchChunkSize {
		end := start + BatchChunkSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		chunk := userIDs[start:end]

		var lastErr error
		for attempt := 1; attempt <= BatchMaxRetries; attempt++ {
			lastErr = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Model(&models.UserEngagement{}).
					Where("guild_id = ? AND user_id IN ?", guildID, chunk).
					Update(column, value).Error; err != nil {
					return err
				}
				return tx.Model(&models.MetricIndexRecord{}).
					Where("guild_id = ? AND metric = ? AND user_id IN ?", guildID, metric, chunk).
					Updates(map[string]interface{}{"value": value, "updated_at": time.Now().UTC()}).Error
			})
			if lastErr == nil {
				break
			}
			log.Printf("[STORE] ⚠️ Batch reset %s chunk %d-%d attempt %d/%d failed: %v",
				metric, start, end, attempt, BatchMaxRetries, lastErr)
		}
		if lastErr != nil {
			result.Failed += len(chunk)
			continue
		}
		result.Success += len(chunk)
	}
	return result, nil
}

func (s *GormStore) TouchHeatmap(ctx context.Context, guildID, userID, date string, delta int64) error {
	bucket := models.HeatmapBucket{
		GuildID:  guildID,
		UserID:   userID,
		Date:     date,
		Messages: delta,
	}
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}, {Name: "date"}},
		DoNothing: true,
	}
	if delta != 0 {
		conflict.DoNothing = false
		conflict.DoUpdates = clause.Assignments(map[string]interface{}{
			"messages": gorm.Expr("heatmap_buckets.messages + ?", delta),
		})
	}
	if err := s.DB.WithContext(ctx).Clauses(conflict).Create(&bucket).Error; err != nil {
		return fmt.Errorf("touch heatmap %s/%s@%s: %w", guildID, userID, date, err)
	}
	return nil
}

func (s *GormStore) AppendMilestone(ctx context.Context, m *models.Milestone) error {
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("append milestone %q for %s/%s: %w", m.Name, m.GuildID, m.UserID, err)
	}
	return nil
}

func (s *GormStore) GuildActivitySince(ctx context.Context, guildID, sinceDate string) (GuildActivity, error) {
	var agg GuildActivity
	err := s.DB.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(messages), 0) AS total_messages,
		       COUNT(DISTINCT user_id) FILTER (WHERE messages > 0) AS active_users
		FROM heatmap_buckets
		WHERE guild_id = ? AND date >= ? AND deleted_at IS NULL
	`, guildID, sinceDate).Scan(&agg).Error
	if err != nil {
		return agg, fmt.Errorf("aggregate activity for guild %s: %w", guildID, err)
	}
	return agg, nil
}

func (s *GormStore) GetJobState(ctx context.Context, name string) (*models.JobState, error) {
	var js models.JobState
	err := s.DB.WithContext(ctx).Where("name = ?", name).First(&js).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job state %s: %w", name, err)
	}
	return &js, nil
}

func (s *GormStore) PutJobState(ctx context.Context, js *models.JobState) error {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "next_run_at", "updated_at"}),
	}).Create(js).Error
	if err != nil {
		return fmt.Errorf("save job state %s: %w", js.Name, err)
	}
	return nil
}
