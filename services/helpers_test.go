package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"community-engagement-system/models"
	"community-engagement-system/store"
)

// recordingNotifier captures collaborator calls for assertions.
type recordingNotifier struct {
	mu            sync.Mutex
	grants        []string // "guild|user|role"
	revokes       []string
	clears        []string // "guild|role"
	announcements []interface{}
	dms           []interface{}
}

func (n *recordingNotifier) GrantRole(_ context.Context, guildID, userID, roleID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.grants = append(n.grants, guildID+"|"+userID+"|"+roleID)
}

func (n *recordingNotifier) RevokeRole(_ context.Context, guildID, userID, roleID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revokes = append(n.revokes, guildID+"|"+userID+"|"+roleID)
}

func (n *recordingNotifier) ClearRole(_ context.Context, guildID, roleID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clears = append(n.clears, guildID+"|"+roleID)
}

func (n *recordingNotifier) Announce(_ context.Context, _, _ string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announcements = append(n.announcements, payload)
}

func (n *recordingNotifier) DirectMessage(_ context.Context, _ string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dms = append(n.dms, payload)
}

func (n *recordingNotifier) grantCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.grants)
}

const testGuild = "guild-1"

func testConfig() *models.GuildConfig {
	return &models.GuildConfig{
		GuildID: testGuild,
		Streak: models.StreakSettings{
			Enabled:         true,
			StreakThreshold: 10,
			DayRoles:        map[int]string{5: "role-5day", 30: "role-30day"},
			OutputChannel:   "ch-streaks",
		},
		Level: models.LevelSettings{
			Enabled:         true,
			XPPerMessage:    10,
			LevelMultiplier: 1, // flat 100 XP per level, keeps arithmetic obvious
			LevelRoles:      map[int]string{3: "role-level3"},
			LevelUpChannel:  "ch-levels",
			LevelUpMessages: true,
		},
		Leader: models.LeaderSettings{
			Enabled: true,
			Channel: "ch-leader",
			Role:    "role-leader",
		},
		Reports: models.ReportSettings{
			WeeklyChannel:  "ch-weekly",
			MonthlyChannel: "ch-monthly",
		},
	}
}

func newTestIngestion(cfg *models.GuildConfig) (*IngestionService, *store.MemoryStore, *recordingNotifier) {
	st := store.NewMemoryStore()
	notify := &recordingNotifier{}
	svc := NewIngestionService(st, &StaticConfigProvider{
		Configs: map[string]*models.GuildConfig{cfg.GuildID: cfg},
	}, notify)
	return svc, st, notify
}

func mustGetUser(t *testing.T, st *store.MemoryStore, guildID, userID string) *models.UserEngagement {
	t.Helper()
	u, err := st.GetUser(context.Background(), guildID, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u == nil {
		t.Fatalf("expected user %s/%s to exist", guildID, userID)
	}
	return u
}

// mustSeedUser creates a bare engagement record the test mutates and re-saves.
func mustSeedUser(t *testing.T, st *store.MemoryStore, userID string) *models.UserEngagement {
	t.Helper()
	u := &models.UserEngagement{
		GuildID:   testGuild,
		UserID:    userID,
		Threshold: 10,
	}
	if err := st.PutUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", userID, err)
	}
	return u
}

func event(userID, content string, at time.Time) MessageEvent {
	return MessageEvent{
		GuildID:   testGuild,
		UserID:    userID,
		ChannelID: "ch-general",
		Content:   content,
		At:        at,
	}
}
