package services

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"community-engagement-system/models"
	"community-engagement-system/store"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"
)

const (
	rolloverTick        = 1 * time.Minute
	scanBatchSize       = 100
	rolloverConcurrency = 8

	// TopLeaderCount is how many weekly message leaders get the ceremony.
	TopLeaderCount = 5

	monthlyInterval = 30 * 24 * time.Hour
)

// RolloverService owns the scheduled state transitions: daily streak
// decay, weekly leader rollover, monthly aggregate reports. Each job is
// idempotent per period via persisted JobState; per-user failures are
// counted, never fatal to the batch.
type RolloverService struct {
	Store   store.RecordStore
	Config  GuildConfigProvider
	Notify  Notifier
	Reports *ReportService
}

func NewRolloverService(st store.RecordStore, cfg GuildConfigProvider, notify Notifier, reports *ReportService) *RolloverService {
	return &RolloverService{Store: st, Config: cfg, Notify: notify, Reports: reports}
}

// StartScheduler wakes once a minute and fires whichever jobs are due per
// their persisted next-run timestamps. Recomputing the delay on every wake
// keeps long periods correct across restarts; no chained timers.
func (s *RolloverService) StartScheduler(ctx context.Context) {
	sched, _ := gocron.NewScheduler()

	_, _ = sched.NewJob(
		gocron.DurationJob(rolloverTick),
		gocron.NewTask(func() {
			s.tick(ctx, time.Now().UTC())
		}),
	)

	sched.Start()
	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
	}()
	log.Println("🗓️ Rollover scheduler started (daily/weekly/monthly)")
}

func (s *RolloverService) tick(ctx context.Context, now time.Time) {
	if s.due(ctx, models.JobDailyRollover, now) {
		if err := s.RunDaily(ctx, now); err != nil {
			log.Printf("[ROLLOVER] ❌ Daily rollover failed: %v", err)
		}
	}
	if s.due(ctx, models.JobWeeklyRollover, now) {
		if err := s.RunWeekly(ctx, now); err != nil {
			log.Printf("[ROLLOVER] ❌ Weekly rollover failed: %v", err)
		}
	}
	if s.due(ctx, models.JobMonthlyRollover, now) {
		if err := s.RunMonthly(ctx, now); err != nil {
			log.Printf("[ROLLOVER] ❌ Monthly rollover failed: %v", err)
		}
	}
}

// due reports whether a job's persisted next-run timestamp has passed.
// A job with no state yet is seeded with its next scheduled boundary
// instead of firing, so a first boot doesn't run every period at once.
func (s *RolloverService) due(ctx context.Context, name string, now time.Time) bool {
	js, err := s.Store.GetJobState(ctx, name)
	if err != nil {
		log.Printf("[ROLLOVER] ⚠️ Cannot read job state %s: %v", name, err)
		return false
	}
	if js == nil {
		next := firstRun(name, now)
		if err := s.Store.PutJobState(ctx, &models.JobState{
			Name:      name,
			NextRunAt: store.TimePtr(next),
		}); err != nil {
			log.Printf("[ROLLOVER] ⚠️ Cannot seed job state %s: %v", name, err)
		}
		log.Printf("[ROLLOVER] 🕐 First boot: %s scheduled for %s", name, next.Format(time.RFC3339))
		return false
	}
	if js.NextRunAt == nil {
		return true
	}
	return !now.Before(*js.NextRunAt)
}

// firstRun picks the initial boundary for a job that has never run.
func firstRun(name string, now time.Time) time.Time {
	switch name {
	case models.JobDailyRollover:
		return nextDaily(now)
	case models.JobWeeklyRollover:
		return nextWeekly(now)
	default:
		return now.Add(monthlyInterval)
	}
}

func (s *RolloverService) saveJobState(ctx context.Context, name string, ranAt, nextRun time.Time) {
	js, err := s.Store.GetJobState(ctx, name)
	if err != nil || js == nil {
		js = &models.JobState{Name: name}
	}
	js.LastRunAt = store.TimePtr(ranAt)
	js.NextRunAt = store.TimePtr(nextRun)
	if err := s.Store.PutJobState(ctx, js); err != nil {
		log.Printf("[ROLLOVER] ⚠️ Cannot persist job state %s: %v", name, err)
	}
}

// nextDaily is the next UTC 00:05 after now.
func nextDaily(now time.Time) time.Time {
	candidate := models.DayStart(now).Add(5 * time.Minute)
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

// nextWeekly is the next Monday 08:00 UTC after now.
func nextWeekly(now time.Time) time.Time {
	candidate := models.DayStart(now).Add(8 * time.Hour)
	for candidate.Weekday() != time.Monday || !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

// isoWeek is the idempotency key for the weekly job.
func isoWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// RunDaily applies the daily decay/bookkeeping pass to every user of every
// guild. Idempotent per UTC day: a second run the same day is a no-op.
func (s *RolloverService) RunDaily(ctx context.Context, now time.Time) error {
	js, err := s.Store.GetJobState(ctx, models.JobDailyRollover)
	if err != nil {
		return err
	}
	if js != nil && js.LastRunAt != nil && models.DayKey(*js.LastRunAt) == models.DayKey(now) {
		log.Printf("[ROLLOVER] ⏭️ Daily rollover already ran on %s", models.DayKey(now))
		return nil
	}

	guilds, err := s.Store.ListGuilds(ctx)
	if err != nil {
		return err
	}

	var processed, failed int64
	for _, guildID := range guilds {
		cfg, err := s.Config.Config(ctx, guildID)
		if err != nil {
			log.Printf("[ROLLOVER] ⚠️ Skipping guild %s: %v", guildID, err)
			continue
		}
		p, f := s.dailyGuild(ctx, guildID, cfg, now)
		processed += p
		failed += f
	}

	s.saveJobState(ctx, models.JobDailyRollover, now, nextDaily(now))
	log.Printf("[ROLLOVER] ✅ Daily rollover done: %d user(s) processed, %d failure(s)", processed, failed)
	return nil
}

func (s *RolloverService) dailyGuild(ctx context.Context, guildID string, cfg *models.GuildConfig, now time.Time) (processed, failed int64) {
	err := s.Store.ForEachUser(ctx, guildID, scanBatchSize, func(batch []models.UserEngagement) error {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(rolloverConcurrency)
		for i := range batch {
			u := batch[i]
			eg.Go(func() error {
				if err := s.dailyUser(egCtx, cfg, u, now); err != nil {
					// Isolate per-user failures; the batch keeps going.
					atomic.AddInt64(&failed, 1)
					log.Printf("[ROLLOVER] ⚠️ Daily update failed for %s/%s: %v", shortID(guildID), shortID(u.UserID), err)
					return nil
				}
				atomic.AddInt64(&processed, 1)
				return nil
			})
		}
		return eg.Wait()
	})
	if err != nil {
		log.Printf("[ROLLOVER] ❌ User scan aborted for guild %s: %v", guildID, err)
	}
	return processed, failed
}

func (s *RolloverService) dailyUser(ctx context.Context, cfg *models.GuildConfig, u models.UserEngagement, now time.Time) error {
	today := models.DayKey(now)
	if err := s.Store.TouchHeatmap(ctx, u.GuildID, u.UserID, today, 0); err != nil {
		log.Printf("[ROLLOVER] ⚠️ Heatmap zero-fill failed for %s/%s: %v", shortID(u.GuildID), shortID(u.UserID), err)
	}

	lostStreak := 0
	if !u.ReceivedDaily && u.Streak > 0 {
		lostStreak = u.Streak
		u.Streak = 0
		u.LastStreakLoss = store.TimePtr(now)
	}
	u.ReceivedDaily = false
	u.Threshold = cfg.EffectiveStreakThreshold()

	u.DaysTracked++
	u.AverageMessagesPerDay = float64(u.TotalMessages) / float64(u.DaysTracked)

	if u.LastActivityDate != nil {
		yesterday := models.DayStart(now).Add(-24 * time.Hour)
		if models.DayStart(*u.LastActivityDate).Equal(yesterday) {
			u.ActiveDaysCount++
		}
		inactiveDays := int(models.DayStart(now).Sub(models.DayStart(*u.LastActivityDate)).Hours() / 24)
		if inactiveDays > u.LongestInactivePeriod {
			u.LongestInactivePeriod = inactiveDays
		}
	}

	if err := s.Store.PutUser(ctx, &u); err != nil {
		return err
	}

	if lostStreak > 0 {
		for day, roleID := range cfg.Streak.DayRoles {
			if day <= lostStreak {
				s.Notify.RevokeRole(ctx, u.GuildID, u.UserID, roleID)
			}
		}
		s.Notify.DirectMessage(ctx, u.UserID, StreakLossNotice{
			Type:       "streak_loss",
			GuildID:    u.GuildID,
			LostStreak: lostStreak,
		})
	}
	return nil
}

// RunWeekly crowns the weekly message leaders, resets the weekly counters,
// and emits the weekly report. Idempotent per ISO week.
func (s *RolloverService) RunWeekly(ctx context.Context, now time.Time) error {
	js, err := s.Store.GetJobState(ctx, models.JobWeeklyRollover)
	if err != nil {
		return err
	}
	if js != nil && js.LastRunAt != nil && isoWeek(*js.LastRunAt) == isoWeek(now) {
		log.Printf("[ROLLOVER] ⏭️ Weekly rollover already ran in %s", isoWeek(now))
		return nil
	}

	guilds, err := s.Store.ListGuilds(ctx)
	if err != nil {
		return err
	}
	for _, guildID := range guilds {
		if err := s.weeklyGuild(ctx, guildID, now); err != nil {
			log.Printf("[ROLLOVER] ⚠️ Weekly rollover failed for guild %s: %v", guildID, err)
		}
	}

	s.saveJobState(ctx, models.JobWeeklyRollover, now, nextWeekly(now))
	return nil
}

func (s *RolloverService) weeklyGuild(ctx context.Context, guildID string, now time.Time) error {
	cfg, err := s.Config.Config(ctx, guildID)
	if err != nil {
		return err
	}

	top, err := s.Store.QueryMetric(ctx, guildID, models.MetricMessages, TopLeaderCount)
	if err != nil {
		return err
	}
	ranking := make([]RankedUser, 0, len(top))
	winners := map[string]bool{}
	for _, entry := range top {
		if entry.Value <= 0 {
			continue
		}
		ranking = append(ranking, RankedUser{
			Rank:   len(ranking) + 1,
			UserID: entry.UserID,
			Value:  entry.Value,
		})
		winners[entry.UserID] = true
	}

	if cfg.Leader.Enabled && len(ranking) > 0 {
		if cfg.Leader.Role != "" {
			s.Notify.ClearRole(ctx, guildID, cfg.Leader.Role)
		}
		for _, w := range ranking {
			if cfg.Leader.Role != "" {
				s.Notify.GrantRole(ctx, guildID, w.UserID, cfg.Leader.Role)
			}
			if err := s.recordLeaderWin(ctx, guildID, w.UserID); err != nil {
				log.Printf("[ROLLOVER] ⚠️ Failed to record leader win for %s/%s: %v", shortID(guildID), shortID(w.UserID), err)
			}
		}
		s.Notify.Announce(ctx, guildID, cfg.Leader.Channel, WeeklyLeaderAnnouncement{
			Type:    "weekly_leader",
			GuildID: guildID,
			Metric:  models.MetricMessages,
			Label:   MetricLabel(models.MetricMessages),
			Ranking: ranking,
		})
	}

	// One scan collects the weekly totals, the counter-reset candidates,
	// and the leader streaks to break.
	var totalMessages int64
	var resetIDs []string
	err = s.Store.ForEachUser(ctx, guildID, scanBatchSize, func(batch []models.UserEngagement) error {
		for _, u := range batch {
			totalMessages += u.Messages
			if u.Messages > 0 {
				resetIDs = append(resetIDs, u.UserID)
			}
			if cfg.Leader.Enabled && u.CurrentLeaderStreak > 0 && !winners[u.UserID] {
				if err := s.Store.UpdateUserFields(ctx, guildID, u.UserID, store.FieldPatch{
					CurrentLeaderStreak: store.IntPtr(0),
				}); err != nil {
					log.Printf("[ROLLOVER] ⚠️ Failed to break leader streak for %s/%s: %v", shortID(guildID), shortID(u.UserID), err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Weekly counter rollover is unconditional for everyone with messages,
	// winners and losers alike.
	if len(resetIDs) > 0 {
		result, err := s.Store.BatchResetMetric(ctx, guildID, resetIDs, models.MetricMessages, 0)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			log.Printf("[ROLLOVER] ⚠️ Weekly counter reset for guild %s left %d user(s) un-reset (%d ok)",
				guildID, result.Failed, result.Success)
		}
	}

	s.Reports.EmitWeekly(ctx, cfg, guildID, totalMessages, ranking, now)
	log.Printf("[ROLLOVER] ✅ Weekly rollover done for guild %s: %d leader(s), %d counter(s) reset", guildID, len(ranking), len(resetIDs))
	return nil
}

func (s *RolloverService) recordLeaderWin(ctx context.Context, guildID, userID string) error {
	u, err := s.Store.GetUser(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	u.MessageLeaderWins++
	u.CurrentLeaderStreak++
	if u.CurrentLeaderStreak > u.MostConsecutiveLeader {
		u.MostConsecutiveLeader = u.CurrentLeaderStreak
	}
	return s.Store.PutUser(ctx, u)
}

// RunMonthly emits the 30-day aggregate report per guild. Reads only.
func (s *RolloverService) RunMonthly(ctx context.Context, now time.Time) error {
	js, err := s.Store.GetJobState(ctx, models.JobMonthlyRollover)
	if err != nil {
		return err
	}
	if js != nil && js.LastRunAt != nil && now.Sub(*js.LastRunAt) < monthlyInterval-rolloverTick {
		return nil
	}

	periodStart := models.DayKey(now.Add(-monthlyInterval))
	guilds, err := s.Store.ListGuilds(ctx)
	if err != nil {
		return err
	}
	for _, guildID := range guilds {
		cfg, err := s.Config.Config(ctx, guildID)
		if err != nil {
			log.Printf("[ROLLOVER] ⚠️ Skipping monthly report for guild %s: %v", guildID, err)
			continue
		}
		activity, err := s.Store.GuildActivitySince(ctx, guildID, periodStart)
		if err != nil {
			log.Printf("[ROLLOVER] ⚠️ Monthly aggregation failed for guild %s: %v", guildID, err)
			continue
		}
		s.Reports.EmitMonthly(ctx, cfg, guildID, activity, periodStart, now)
	}

	s.saveJobState(ctx, models.JobMonthlyRollover, now, now.Add(monthlyInterval))
	log.Printf("[ROLLOVER] ✅ Monthly reports emitted for %d guild(s)", len(guilds))
	return nil
}

// ResetGuildMessages is the manual weekly-counter reset used by admins.
func (s *RolloverService) ResetGuildMessages(ctx context.Context, guildID string) (store.BatchResult, error) {
	var resetIDs []string
	err := s.Store.ForEachUser(ctx, guildID, scanBatchSize, func(batch []models.UserEngagement) error {
		for _, u := range batch {
			if u.Messages > 0 {
				resetIDs = append(resetIDs, u.UserID)
			}
		}
		return nil
	})
	if err != nil {
		return store.BatchResult{}, err
	}
	if len(resetIDs) == 0 {
		return store.BatchResult{}, nil
	}
	return s.Store.BatchResetMetric(ctx, guildID, resetIDs, models.MetricMessages, 0)
}
