package services

import (
	"context"

	"community-engagement-system/store"
)

// LeaderboardEntry is one ranked row as served to the gateway.
type LeaderboardEntry struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Value  float64 `json:"value"`
}

// LeaderboardResponse is the API shape for a leaderboard query.
type LeaderboardResponse struct {
	GuildID string             `json:"guild_id"`
	Metric  string             `json:"metric"`
	Label   string             `json:"label"`
	Entries []LeaderboardEntry `json:"entries"`
}

// LeaderboardService serves ranked reads from the metric index only; it
// never scans primary records.
type LeaderboardService struct {
	Store store.RecordStore
}

func NewLeaderboardService(st store.RecordStore) *LeaderboardService {
	return &LeaderboardService{Store: st}
}

// Top returns up to limit users ordered descending by the metric. Unknown
// metrics produce an empty board, not an error.
func (s *LeaderboardService) Top(ctx context.Context, guildID, metric string, limit int) (*LeaderboardResponse, error) {
	rows, err := s.Store.QueryMetric(ctx, guildID, metric, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = LeaderboardEntry{
			Rank:   i + 1,
			UserID: row.UserID,
			Value:  row.Value,
		}
	}
	return &LeaderboardResponse{
		GuildID: guildID,
		Metric:  metric,
		Label:   MetricLabel(metric),
		Entries: entries,
	}, nil
}
