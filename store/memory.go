package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"community-engagement-system/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory RecordStore with the same index fan-out
// semantics as GormStore. It backs the test suite and local runs without
// a database.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]map[string]*models.UserEngagement // guild → user → record
	index      map[string]map[string]float64                // guild|metric → user → value
	heatmap    map[string]int64                             // guild|user|date → messages
	milestones []models.Milestone
	jobs       map[string]*models.JobState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   map[string]map[string]*models.UserEngagement{},
		index:   map[string]map[string]float64{},
		heatmap: map[string]int64{},
		jobs:    map[string]*models.JobState{},
	}
}

func heatmapKey(guildID, userID, date string) string {
	return guildID + "|" + userID + "|" + date
}

func indexKey(guildID, metric string) string {
	return guildID + "|" + metric
}

func (s *MemoryStore) GetUser(_ context.Context, guildID, userID string) (*models.UserEngagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[guildID][userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) PutUser(_ context.Context, u *models.UserEngagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if s.users[u.GuildID] == nil {
		s.users[u.GuildID] = map[string]*models.UserEngagement{}
	}
	cp := *u
	s.users[u.GuildID][u.UserID] = &cp
	for _, metric := range models.TrackedMetrics {
		s.setIndex(u.GuildID, metric, u.UserID, models.MetricValue(&cp, metric))
	}
	return nil
}

func (s *MemoryStore) UpdateUserFields(_ context.Context, guildID, userID string, patch FieldPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[guildID][userID]
	if !ok {
		return nil
	}
	patch.Apply(u)
	for metric, value := range patch.ChangedMetrics() {
		s.setIndex(guildID, metric, userID, value)
	}
	return nil
}

func (s *MemoryStore) setIndex(guildID, metric, userID string, value float64) {
	key := indexKey(guildID, metric)
	if s.index[key] == nil {
		s.index[key] = map[string]float64{}
	}
	s.index[key][userID] = value
}

func (s *MemoryStore) ForEachUser(_ context.Context, guildID string, batchSize int, fn func([]models.UserEngagement) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	s.mu.Lock()
	userIDs := make([]string, 0, len(s.users[guildID]))
	for id := range s.users[guildID] {
		userIDs = append(userIDs, id)
	}
	s.mu.Unlock()
	sort.Strings(userIDs)

	for start := 0; start < len(userIDs); start += batchSize {
		end := start + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batch := make([]models.UserEngagement, 0, end-start)
		s.mu.Lock()
		for _, id := range userIDs[start:end] {
			if u, ok := s.users[guildID][id]; ok {
				batch = append(batch, *u)
			}
		}
		s.mu.Unlock()
		if len(batch) == 0 {
			continue
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) ListGuilds(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guilds := make([]string, 0, len(s.users))
	for g := range s.users {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)
	return guilds, nil
}

func (s *MemoryStore) QueryMetric(_ context.Context, guildID, metric string, limit int) ([]MetricEntry, error) {
	if !models.IsTrackedMetric(metric) {
		return []MetricEntry{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	s.mu.Lock()
	entries := make([]MetricEntry, 0, len(s.index[indexKey(guildID, metric)]))
	for userID, value := range s.index[indexKey(guildID, metric)] {
		entries = append(entries, MetricEntry{UserID: userID, Value: value})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) BatchResetMetric(_ context.Context, guildID string, userIDs []string, metric string, value float64) (BatchResult, error) {
	var result BatchResult
	if _, ok := metricColumn(metric); !ok {
		return result, fmt.Errorf("metric %q cannot be batch-reset", metric)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		u, ok := s.users[guildID][id]
		if !ok {
			result.Failed++
			continue
		}
		switch metric {
		case models.MetricStreak:
			u.Streak = int(value)
		case models.MetricMessages:
			u.Messages = int64(value)
		case models.MetricHighestStreak:
			u.HighestStreak = int(value)
		case models.MetricMessageLeaderWins:
			u.MessageLeaderWins = int(value)
		case models.MetricLevel:
			u.Level = int(value)
		case models.MetricTotalXP:
			u.TotalXP = value
		case models.MetricActiveDaysCount:
			u.ActiveDaysCount = int(value)
		case models.MetricLongestInactivePeriod:
			u.LongestInactivePeriod = int(value)
		case models.MetricMostConsecutiveLeader:
			u.MostConsecutiveLeader = int(value)
		case models.MetricAverageMessagesPerDay:
			u.AverageMessagesPerDay = value
		}
		s.setIndex(guildID, metric, id, value)
		result.Success++
	}
	return result, nil
}

func (s *MemoryStore) TouchHeatmap(_ context.Context, guildID, userID, date string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := heatmapKey(guildID, userID, date)
	if _, ok := s.heatmap[key]; !ok {
		s.heatmap[key] = 0
	}
	s.heatmap[key] += delta
	return nil
}

// HeatmapValue reads one bucket (test helper; absent buckets return -1 so
// tests can tell "no bucket" from "zero bucket").
func (s *MemoryStore) HeatmapValue(guildID, userID, date string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.heatmap[heatmapKey(guildID, userID, date)]
	if !ok {
		return -1
	}
	return v
}

func (s *MemoryStore) AppendMilestone(_ context.Context, m *models.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.milestones = append(s.milestones, *m)
	return nil
}

// Milestones returns a copy of the milestone log (test helper).
func (s *MemoryStore) Milestones() []models.Milestone {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Milestone, len(s.milestones))
	copy(out, s.milestones)
	return out
}

func (s *MemoryStore) GuildActivitySince(_ context.Context, guildID, sinceDate string) (GuildActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var agg GuildActivity
	activeUsers := map[string]bool{}
	for key, messages := range s.heatmap {
		guild, user, date, ok := splitHeatmapKey(key)
		if !ok || guild != guildID || date < sinceDate {
			continue
		}
		agg.TotalMessages += messages
		if messages > 0 {
			activeUsers[user] = true
		}
	}
	agg.ActiveUsers = int64(len(activeUsers))
	return agg, nil
}

func splitHeatmapKey(key string) (guild, user, date string, ok bool) {
	first := -1
	last := -1
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			if first == -1 {
				first = i
			} else {
				last = i
			}
		}
	}
	if first == -1 || last == -1 || last <= first {
		return "", "", "", false
	}
	return key[:first], key[first+1 : last], key[last+1:], true
}

func (s *MemoryStore) GetJobState(_ context.Context, name string) (*models.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	js, ok := s.jobs[name]
	if !ok {
		return nil, nil
	}
	cp := *js
	return &cp, nil
}

func (s *MemoryStore) PutJobState(_ context.Context, js *models.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *js
	s.jobs[js.Name] = &cp
	return nil
}
