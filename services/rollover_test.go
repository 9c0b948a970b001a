package services

import (
	"context"
	"testing"
	"time"

	"community-engagement-system/models"
	"community-engagement-system/store"
)

// rolloverAt is a Tuesday so the daily and weekly jobs don't collide.
var rolloverAt = time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)

func newTestRollover(cfg *models.GuildConfig) (*RolloverService, *store.MemoryStore, *recordingNotifier) {
	st := store.NewMemoryStore()
	notify := &recordingNotifier{}
	provider := &StaticConfigProvider{
		Configs: map[string]*models.GuildConfig{cfg.GuildID: cfg},
	}
	svc := NewRolloverService(st, provider, notify, NewReportService(notify, nil))
	return svc, st, notify
}

func TestDailyRolloverStreakLoss(t *testing.T) {
	cfg := testConfig()
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	seed := mustSeedUser(t, st, "u1")
	seed.Streak = 6
	seed.HighestStreak = 6
	seed.ReceivedDaily = false
	if err := st.PutUser(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.RunDaily(ctx, rolloverAt); err != nil {
		t.Fatalf("daily: %v", err)
	}

	u := mustGetUser(t, st, testGuild, "u1")
	if u.Streak != 0 {
		t.Fatalf("uncredited streak must reset, got %d", u.Streak)
	}
	if u.HighestStreak != 6 {
		t.Fatalf("highestStreak must survive the loss, got %d", u.HighestStreak)
	}
	if u.LastStreakLoss == nil || !u.LastStreakLoss.Equal(rolloverAt) {
		t.Fatalf("expected lastStreakLoss %v, got %v", rolloverAt, u.LastStreakLoss)
	}
	if u.Threshold != 10 {
		t.Fatalf("threshold must be re-armed to config value, got %d", u.Threshold)
	}

	// Streak of 6 covers the 5-day role but not the 30-day one.
	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.revokes) != 1 || notify.revokes[0] != testGuild+"|u1|role-5day" {
		t.Fatalf("expected only the 5-day role revoked, got %v", notify.revokes)
	}
	if len(notify.dms) != 1 {
		t.Fatalf("expected one streak-loss DM, got %d", len(notify.dms))
	}
	loss, ok := notify.dms[0].(StreakLossNotice)
	if !ok || loss.LostStreak != 6 {
		t.Fatalf("unexpected streak-loss payload %+v", notify.dms[0])
	}
}

func TestDailyRolloverKeepsCreditedStreak(t *testing.T) {
	cfg := testConfig()
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	seed := mustSeedUser(t, st, "u1")
	seed.Streak = 3
	seed.ReceivedDaily = true
	seed.Threshold = 0
	if err := st.PutUser(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.RunDaily(ctx, rolloverAt); err != nil {
		t.Fatalf("daily: %v", err)
	}

	u := mustGetUser(t, st, testGuild, "u1")
	if u.Streak != 3 {
		t.Fatalf("credited streak must survive, got %d", u.Streak)
	}
	if u.ReceivedDaily {
		t.Fatalf("receivedDaily must be re-armed for the new day")
	}
	if u.Threshold != 10 {
		t.Fatalf("threshold must be re-armed to 10, got %d", u.Threshold)
	}
	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.revokes) != 0 || len(notify.dms) != 0 {
		t.Fatalf("no loss side effects expected, got %d revokes %d dms", len(notify.revokes), len(notify.dms))
	}
}

func TestDailyRolloverIdempotentPerDay(t *testing.T) {
	cfg := testConfig()
	svc, st, _ := newTestRollover(cfg)
	ctx := context.Background()

	mustSeedUser(t, st, "u1")

	if err := svc.RunDaily(ctx, rolloverAt); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Second run later the same UTC day must change nothing.
	if err := svc.RunDaily(ctx, rolloverAt.Add(6*time.Hour)); err != nil {
		t.Fatalf("second run: %v", err)
	}

	u := mustGetUser(t, st, testGuild, "u1")
	if u.DaysTracked != 1 {
		t.Fatalf("daysTracked must advance once per day, got %d", u.DaysTracked)
	}

	// The next UTC day it runs again.
	if err := svc.RunDaily(ctx, rolloverAt.Add(24*time.Hour)); err != nil {
		t.Fatalf("next-day run: %v", err)
	}
	u = mustGetUser(t, st, testGuild, "u1")
	if u.DaysTracked != 2 {
		t.Fatalf("expected daysTracked 2 after next-day run, got %d", u.DaysTracked)
	}
}

func TestDailyRolloverActivityStats(t *testing.T) {
	cfg := testConfig()
	svc, st, _ := newTestRollover(cfg)
	ctx := context.Background()

	yesterday := rolloverAt.Add(-20 * time.Hour) // previous UTC day
	active := mustSeedUser(t, st, "active")
	active.TotalMessages = 40
	active.LastActivityDate = store.TimePtr(yesterday)
	if err := st.PutUser(ctx, active); err != nil {
		t.Fatalf("seed: %v", err)
	}

	idle := mustSeedUser(t, st, "idle")
	idle.LastActivityDate = store.TimePtr(rolloverAt.Add(-5 * 24 * time.Hour))
	if err := st.PutUser(ctx, idle); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.RunDaily(ctx, rolloverAt); err != nil {
		t.Fatalf("daily: %v", err)
	}

	u := mustGetUser(t, st, testGuild, "active")
	if u.ActiveDaysCount != 1 {
		t.Fatalf("activity on the previous day must count, got %d", u.ActiveDaysCount)
	}
	if u.DaysTracked != 1 || u.AverageMessagesPerDay != 40 {
		t.Fatalf("expected average 40 over 1 day, got %v over %d", u.AverageMessagesPerDay, u.DaysTracked)
	}

	i := mustGetUser(t, st, testGuild, "idle")
	if i.ActiveDaysCount != 0 {
		t.Fatalf("stale activity must not count as an active day, got %d", i.ActiveDaysCount)
	}
	if i.LongestInactivePeriod != 5 {
		t.Fatalf("expected longest inactive period 5, got %d", i.LongestInactivePeriod)
	}
}

func TestWeeklyRolloverCrownsLeadersAndResetsCounters(t *testing.T) {
	cfg := testConfig()
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	seedMessages := func(userID string, messages int64) {
		u := mustSeedUser(t, st, userID)
		u.Messages = messages
		u.TotalMessages = messages
		if err := st.PutUser(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", userID, err)
		}
	}
	seedMessages("alice", 50)
	seedMessages("bob", 80)
	seedMessages("carol", 0)

	if err := svc.RunWeekly(ctx, rolloverAt); err != nil {
		t.Fatalf("weekly: %v", err)
	}

	// bob leads, alice follows, carol posted nothing and stays off the board.
	notify.mu.Lock()
	var leader *WeeklyLeaderAnnouncement
	for _, a := range notify.announcements {
		if w, ok := a.(WeeklyLeaderAnnouncement); ok {
			leader = &w
		}
	}
	grants := append([]string(nil), notify.grants...)
	clears := append([]string(nil), notify.clears...)
	notify.mu.Unlock()

	if leader == nil {
		t.Fatalf("expected a weekly leader announcement")
	}
	if len(leader.Ranking) != 2 {
		t.Fatalf("expected 2 ranked users, got %d", len(leader.Ranking))
	}
	if leader.Ranking[0].UserID != "bob" || leader.Ranking[0].Value != 80 {
		t.Fatalf("expected bob first with 80, got %+v", leader.Ranking[0])
	}
	if leader.Ranking[1].UserID != "alice" || leader.Ranking[1].Value != 50 {
		t.Fatalf("expected alice second with 50, got %+v", leader.Ranking[1])
	}

	if len(clears) != 1 || clears[0] != testGuild+"|role-leader" {
		t.Fatalf("expected the leader role cleared once, got %v", clears)
	}
	if len(grants) != 2 {
		t.Fatalf("expected the leader role granted to both ranked users, got %v", grants)
	}

	// Weekly counters reset for everyone who posted; totals survive.
	bob := mustGetUser(t, st, testGuild, "bob")
	if bob.Messages != 0 || bob.TotalMessages != 80 {
		t.Fatalf("expected bob reset to 0 with total 80, got %d/%d", bob.Messages, bob.TotalMessages)
	}
	if bob.MessageLeaderWins != 1 || bob.CurrentLeaderStreak != 1 || bob.MostConsecutiveLeader != 1 {
		t.Fatalf("expected bob's first leader win recorded, got wins=%d streak=%d best=%d",
			bob.MessageLeaderWins, bob.CurrentLeaderStreak, bob.MostConsecutiveLeader)
	}
	alice := mustGetUser(t, st, testGuild, "alice")
	if alice.Messages != 0 || alice.MessageLeaderWins != 1 {
		t.Fatalf("top-5 placement counts as a win, got messages=%d wins=%d", alice.Messages, alice.MessageLeaderWins)
	}

	// The board is empty after the reset.
	board, err := st.QueryMetric(ctx, testGuild, models.MetricMessages, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, e := range board {
		if e.Value != 0 {
			t.Fatalf("messages index must read 0 after rollover, got %v for %s", e.Value, e.UserID)
		}
	}
}

func TestWeeklyRolloverBreaksLoserLeaderStreak(t *testing.T) {
	cfg := testConfig()
	svc, st, _ := newTestRollover(cfg)
	ctx := context.Background()

	former := mustSeedUser(t, st, "former-leader")
	former.CurrentLeaderStreak = 3
	former.MostConsecutiveLeader = 3
	if err := st.PutUser(ctx, former); err != nil {
		t.Fatalf("seed: %v", err)
	}
	winner := mustSeedUser(t, st, "winner")
	winner.Messages = 10
	if err := st.PutUser(ctx, winner); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.RunWeekly(ctx, rolloverAt); err != nil {
		t.Fatalf("weekly: %v", err)
	}

	u := mustGetUser(t, st, testGuild, "former-leader")
	if u.CurrentLeaderStreak != 0 {
		t.Fatalf("a week off the podium must break the streak, got %d", u.CurrentLeaderStreak)
	}
	if u.MostConsecutiveLeader != 3 {
		t.Fatalf("best run must survive the break, got %d", u.MostConsecutiveLeader)
	}
}

func TestWeeklyRolloverIdempotentPerWeek(t *testing.T) {
	cfg := testConfig()
	svc, st, _ := newTestRollover(cfg)
	ctx := context.Background()

	u := mustSeedUser(t, st, "u1")
	u.Messages = 5
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.RunWeekly(ctx, rolloverAt); err != nil {
		t.Fatalf("first run: %v", err)
	}
	got := mustGetUser(t, st, testGuild, "u1")
	if got.MessageLeaderWins != 1 {
		t.Fatalf("expected one win after first run, got %d", got.MessageLeaderWins)
	}

	// A retry two days later, same ISO week: nothing moves.
	if err := svc.RunWeekly(ctx, rolloverAt.Add(48*time.Hour)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	got = mustGetUser(t, st, testGuild, "u1")
	if got.MessageLeaderWins != 1 {
		t.Fatalf("same-week rerun must be a no-op, got %d wins", got.MessageLeaderWins)
	}
}

func TestWeeklyRolloverLeaderDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Leader.Enabled = false
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	u := mustSeedUser(t, st, "u1")
	u.Messages = 12
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.RunWeekly(ctx, rolloverAt); err != nil {
		t.Fatalf("weekly: %v", err)
	}

	got := mustGetUser(t, st, testGuild, "u1")
	if got.MessageLeaderWins != 0 {
		t.Fatalf("no wins with the leader system off, got %d", got.MessageLeaderWins)
	}
	if got.Messages != 0 {
		t.Fatalf("counters still reset with the leader system off, got %d", got.Messages)
	}
	if notify.grantCount() != 0 {
		t.Fatalf("no role grants with the leader system off, got %d", notify.grantCount())
	}
}

func TestMonthlyReportAggregates(t *testing.T) {
	cfg := testConfig()
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	mustSeedUser(t, st, "u1")
	mustSeedUser(t, st, "u2")

	inWindow := models.DayKey(rolloverAt.Add(-10 * 24 * time.Hour))
	outOfWindow := models.DayKey(rolloverAt.Add(-45 * 24 * time.Hour))
	if err := st.TouchHeatmap(ctx, testGuild, "u1", inWindow, 30); err != nil {
		t.Fatalf("heatmap: %v", err)
	}
	if err := st.TouchHeatmap(ctx, testGuild, "u2", inWindow, 12); err != nil {
		t.Fatalf("heatmap: %v", err)
	}
	if err := st.TouchHeatmap(ctx, testGuild, "u1", outOfWindow, 99); err != nil {
		t.Fatalf("heatmap: %v", err)
	}

	if err := svc.RunMonthly(ctx, rolloverAt); err != nil {
		t.Fatalf("monthly: %v", err)
	}

	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.announcements) != 1 {
		t.Fatalf("expected one monthly report, got %d announcements", len(notify.announcements))
	}
	report, ok := notify.announcements[0].(MonthlyReport)
	if !ok {
		t.Fatalf("unexpected payload %+v", notify.announcements[0])
	}
	if report.TotalMessages != 42 {
		t.Fatalf("expected 42 messages inside the 30-day window, got %d", report.TotalMessages)
	}
	if report.ActiveUsers != 2 {
		t.Fatalf("expected 2 active users, got %d", report.ActiveUsers)
	}
}

func TestMonthlyRolloverIntervalGuard(t *testing.T) {
	cfg := testConfig()
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	mustSeedUser(t, st, "u1")

	if err := svc.RunMonthly(ctx, rolloverAt); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := svc.RunMonthly(ctx, rolloverAt.Add(7*24*time.Hour)); err != nil {
		t.Fatalf("early rerun: %v", err)
	}

	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.announcements) != 1 {
		t.Fatalf("a rerun inside the 30-day interval must not emit, got %d reports", len(notify.announcements))
	}
}

func TestFirstBootSchedulesWithoutFiring(t *testing.T) {
	cfg := testConfig()
	svc, st, notify := newTestRollover(cfg)
	ctx := context.Background()

	mustSeedUser(t, st, "u1")

	// First tick on a fresh database: every job gets a boundary, none fires.
	svc.tick(ctx, rolloverAt)

	u := mustGetUser(t, st, testGuild, "u1")
	if u.DaysTracked != 0 {
		t.Fatalf("first boot must not run the daily pass, got daysTracked %d", u.DaysTracked)
	}
	notify.mu.Lock()
	if len(notify.announcements) != 0 {
		t.Fatalf("first boot must not emit reports, got %d announcements", len(notify.announcements))
	}
	notify.mu.Unlock()

	js, err := st.GetJobState(ctx, models.JobDailyRollover)
	if err != nil || js == nil || js.NextRunAt == nil {
		t.Fatalf("expected seeded daily job state, got %+v %v", js, err)
	}
	wantDaily := time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC)
	if !js.NextRunAt.Equal(wantDaily) {
		t.Fatalf("expected daily boundary %v, got %v", wantDaily, js.NextRunAt)
	}

	// Once the boundary passes, the daily job fires normally.
	svc.tick(ctx, wantDaily)
	u = mustGetUser(t, st, testGuild, "u1")
	if u.DaysTracked != 1 {
		t.Fatalf("expected the daily pass at its boundary, got daysTracked %d", u.DaysTracked)
	}
}

func TestResetGuildMessages(t *testing.T) {
	cfg := testConfig()
	svc, st, _ := newTestRollover(cfg)
	ctx := context.Background()

	for _, seed := range []struct {
		id       string
		messages int64
	}{{"u1", 4}, {"u2", 9}, {"u3", 0}} {
		u := mustSeedUser(t, st, seed.id)
		u.Messages = seed.messages
		if err := st.PutUser(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", seed.id, err)
		}
	}

	result, err := svc.ResetGuildMessages(ctx, testGuild)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if result.Success != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 resets with 0 failures, got %+v", result)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if u := mustGetUser(t, st, testGuild, id); u.Messages != 0 {
			t.Fatalf("expected %s at 0 messages, got %d", id, u.Messages)
		}
	}
}
