package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"community-engagement-system/models"
	"community-engagement-system/store"

	"github.com/gosimple/slug"
)

// DebounceWindow bounds write amplification: messages from the same user
// closer together than this only refresh last-message metadata.
const DebounceWindow = 3000 * time.Millisecond

// BaseXPPerLevel anchors the level curve: reaching level n+1 from n costs
// floor(BaseXPPerLevel × multiplier^n).
const BaseXPPerLevel = 100

// MessageEvent is one inbound chat message as delivered by the gateway.
type MessageEvent struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Booster   float64   `json:"booster"` // per-user XP multiplier; 0 → 1
	At        time.Time `json:"at"`
}

// IngestionService converts message events into engagement state deltas
// across the streak, level, and message-counter subsystems.
type IngestionService struct {
	Store     store.RecordStore
	Config    GuildConfigProvider
	Notify    Notifier
	Admission *AdmissionFilter
}

func NewIngestionService(st store.RecordStore, cfg GuildConfigProvider, notify Notifier) *IngestionService {
	return &IngestionService{
		Store:     st,
		Config:    cfg,
		Notify:    notify,
		Admission: NewAdmissionFilter(),
	}
}

// HandleMessage runs the admission filter, then the pipeline. Spam-dropped
// messages mutate nothing.
func (s *IngestionService) HandleMessage(ctx context.Context, ev MessageEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if !s.Admission.Check(ev.GuildID, ev.UserID, ev.Content, ev.At) {
		log.Printf("[INGEST] 🚫 Dropped rapid near-duplicate from user %s in guild %s", shortID(ev.UserID), shortID(ev.GuildID))
		return nil
	}
	return s.Ingest(ctx, ev)
}

// Ingest applies one accepted message to the user's engagement record and
// persists the result. Side effects already handed to the notifier are not
// rolled back when persistence fails.
func (s *IngestionService) Ingest(ctx context.Context, ev MessageEvent) error {
	cfg, err := s.Config.Config(ctx, ev.GuildID)
	if err != nil {
		return fmt.Errorf("ingest for guild %s: %w", ev.GuildID, err)
	}

	u, err := s.Store.GetUser(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		return err
	}
	created := u == nil
	if created {
		u = &models.UserEngagement{
			GuildID:   ev.GuildID,
			UserID:    ev.UserID,
			Threshold: cfg.EffectiveStreakThreshold(),
		}
	}

	// Debounce: too soon after the last accepted message — refresh the
	// last-message metadata only.
	if !created && u.LastMessageAt != nil && ev.At.Sub(*u.LastMessageAt) < DebounceWindow {
		return s.Store.UpdateUserFields(ctx, ev.GuildID, ev.UserID, store.FieldPatch{
			LastMessageAt: store.TimePtr(ev.At),
		})
	}

	var leveledTo int
	if cfg.Level.Enabled {
		leveledTo = s.applyXP(u, cfg, ev.Booster)
	}

	var creditedStreak int
	if cfg.Streak.Enabled {
		creditedStreak = s.applyStreak(u)
	}

	u.Messages++
	u.TotalMessages++
	u.LastMessageAt = store.TimePtr(ev.At)
	u.LastActivityDate = store.TimePtr(models.DayStart(ev.At))

	if err := s.Store.PutUser(ctx, u); err != nil {
		log.Printf("[INGEST] ❌ Failed to persist state for %s/%s: %v", shortID(ev.GuildID), shortID(ev.UserID), err)
		return err
	}
	if err := s.Store.TouchHeatmap(ctx, ev.GuildID, ev.UserID, models.DayKey(ev.At), 1); err != nil {
		// Heatmap divergence self-heals at the next daily rollover zero-fill.
		log.Printf("[INGEST] ⚠️ Heatmap update failed for %s/%s: %v", shortID(ev.GuildID), shortID(ev.UserID), err)
	}

	if leveledTo > 0 {
		s.emitLevelUp(ctx, cfg, ev, leveledTo)
	}
	if creditedStreak > 0 {
		s.emitDailyCredit(ctx, cfg, ev, creditedStreak)
	}
	return nil
}

// applyXP adds the message's XP and performs at most ONE level-up, carrying
// the remainder forward. A single message never skips levels even when the
// boosted gain crosses several thresholds; oversized gains convert into
// quick successive level-ups on later messages instead.
// Returns the new level, or 0 if no level-up happened.
func (s *IngestionService) applyXP(u *models.UserEngagement, cfg *models.GuildConfig, booster float64) int {
	if booster <= 0 {
		booster = 1
	}
	u.TotalXP += cfg.EffectiveXPPerMessage() * booster

	required := xpForNextLevel(u.Level, cfg.EffectiveLevelMultiplier())
	if u.TotalXP < required {
		return 0
	}
	u.Level++
	u.TotalXP -= required
	if u.TotalXP < 0 {
		u.TotalXP = 0
	}
	return u.Level
}

// xpForNextLevel returns the XP needed to leave the given level.
func xpForNextLevel(level int, multiplier float64) float64 {
	return math.Floor(BaseXPPerLevel * math.Pow(multiplier, float64(level)))
}

// applyStreak consumes one qualifying message toward today's threshold and
// grants the daily credit once the threshold hits zero. ReceivedDaily keeps
// the credit at-most-once until the next daily rollover resets it.
// Returns the new streak on credit, else 0.
func (s *IngestionService) applyStreak(u *models.UserEngagement) int {
	if u.Threshold > 0 {
		u.Threshold--
	}
	if u.Threshold != 0 || u.ReceivedDaily {
		return 0
	}
	u.Streak++
	u.ReceivedDaily = true
	if u.Streak > u.HighestStreak {
		u.HighestStreak = u.Streak
	}
	return u.Streak
}

func (s *IngestionService) emitLevelUp(ctx context.Context, cfg *models.GuildConfig, ev MessageEvent, level int) {
	log.Printf("[INGEST] 🎮 Level up: user %s in guild %s → level %d", shortID(ev.UserID), shortID(ev.GuildID), level)
	if roleID, ok := cfg.Level.LevelRoles[level]; ok {
		s.Notify.GrantRole(ctx, ev.GuildID, ev.UserID, roleID)
	}
	if cfg.Level.LevelUpMessages {
		channel := cfg.Level.LevelUpChannel
		if channel == "" {
			channel = ev.ChannelID
		}
		s.Notify.Announce(ctx, ev.GuildID, channel, LevelUpAnnouncement{
			Type:    "level_up",
			GuildID: ev.GuildID,
			UserID:  ev.UserID,
			Level:   level,
		})
	}
}

func (s *IngestionService) emitDailyCredit(ctx context.Context, cfg *models.GuildConfig, ev MessageEvent, streak int) {
	log.Printf("[INGEST] 🔥 Daily streak credit: user %s in guild %s → %d day(s)", shortID(ev.UserID), shortID(ev.GuildID), streak)

	// Milestones are the exact streak lengths a role is bound to. The
	// credit itself is announced either way.
	roleID, bound := cfg.Streak.DayRoles[streak]
	if bound {
		s.Notify.GrantRole(ctx, ev.GuildID, ev.UserID, roleID)

		name := fmt.Sprintf("%d-day streak", streak)
		milestone := &models.Milestone{
			GuildID:   ev.GuildID,
			UserID:    ev.UserID,
			Name:      name,
			Slug:      slug.Make(name),
			ReachedAt: ev.At,
		}
		if err := s.Store.AppendMilestone(ctx, milestone); err != nil {
			log.Printf("[INGEST] ⚠️ Failed to record milestone %q for %s/%s: %v", name, shortID(ev.GuildID), shortID(ev.UserID), err)
		}
	}

	s.Notify.Announce(ctx, ev.GuildID, cfg.Streak.OutputChannel, StreakMilestoneAnnouncement{
		Type:    "streak_milestone",
		GuildID: ev.GuildID,
		UserID:  ev.UserID,
		Streak:  streak,
		RoleID:  roleID,
	})
}
