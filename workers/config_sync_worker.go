// workers/config_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"community-engagement-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteGuildConfig matches the JSON served by the bot-config service.
type RemoteGuildConfig struct {
	GuildID string                `json:"guild_id"`
	Streak  models.StreakSettings `json:"streak_system"`
	Level   models.LevelSettings  `json:"level_system"`
	Leader  models.LeaderSettings `json:"message_leader_system"`
	Reports models.ReportSettings `json:"report_settings"`

	UpdatedAt time.Time `json:"updated_at"`
}

// GetConfigChangesResponse is the top-level structure of the config service response.
type GetConfigChangesResponse struct {
	Configs []RemoteGuildConfig `json:"configs"`
}

// ConfigSyncWorker mirrors per-guild settings from the external bot-config
// service into the local guild_configs table, which the core reads.
type ConfigSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8600"
	endpointPath string // e.g., "/api/v1/public/guild-configs"
	serviceToken string
	httpClient   *http.Client
}

func NewConfigSyncWorker(db *gorm.DB, configServiceBaseURL, endpointPath, serviceToken string) *ConfigSyncWorker {
	return &ConfigSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      configServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *ConfigSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Guild Config Sync Worker (config-service → guild_configs)…")
	go w.run(ctx)
}

func (w *ConfigSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed) - sync from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial config sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Config sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Guild Config Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt from the local mirror table.
func (w *ConfigSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM guild_configs WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches config changes and upserts the local mirror rows.
func (w *ConfigSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base config service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.Printf("[CONFIG_SYNC] ❌ Request to %s failed: %v", finalURL, err)
		return fmt.Errorf("HTTP request to config service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[CONFIG_SYNC] ❌ Config service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return fmt.Errorf("config service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetConfigChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode config service response: %w", err)
	}

	if len(response.Configs) == 0 {
		return nil
	}

	log.Printf("[CONFIG_SYNC] 📥 Processing %d guild config(s)…", len(response.Configs))

	var upsertCount, errorCount int
	for _, remote := range response.Configs {
		local := models.GuildConfig{
			GuildID: remote.GuildID,
			Streak:  remote.Streak,
			Level:   remote.Level,
			Leader:  remote.Leader,
			Reports: remote.Reports,
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"streak", "level", "leader", "reports", "updated_at",
			}),
		}).Create(&local).Error; err != nil {
			errorCount++
			log.Printf("[CONFIG_SYNC] ⚠️ Failed to upsert guild config (guild_id=%q): %v", remote.GuildID, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[CONFIG_SYNC] ✅ Synced %d guild config(s) (%d upserted, %d errors)", len(response.Configs), upsertCount, errorCount)
	return nil
}
