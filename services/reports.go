package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"community-engagement-system/models"
	"community-engagement-system/store"

	"github.com/gosimple/slug"
)

// ReportArchiver stores a rendered report and returns its public URL.
// The R2 client in utils implements this; a nil archiver disables archiving.
type ReportArchiver interface {
	ArchiveReport(key string, data []byte) (string, error)
}

// WeeklyReport summarizes one guild's week at rollover time.
type WeeklyReport struct {
	Type          string       `json:"type"` // "weekly_report"
	GuildID       string       `json:"guild_id"`
	GeneratedAt   time.Time    `json:"generated_at"`
	TotalMessages int64        `json:"total_messages"`
	Ranking       []RankedUser `json:"ranking"`
	ArchiveURL    string       `json:"archive_url,omitempty"`
}

// MonthlyReport summarizes one guild's 30-day activity window.
type MonthlyReport struct {
	Type          string    `json:"type"` // "monthly_report"
	GuildID       string    `json:"guild_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	PeriodStart   string    `json:"period_start"` // UTC day key
	TotalMessages int64     `json:"total_messages"`
	ActiveUsers   int64     `json:"active_users"`
	ArchiveURL    string    `json:"archive_url,omitempty"`
}

// ReportService builds the weekly/monthly reports, archives them to object
// storage, and hands them to the notifier. All of it is best effort.
type ReportService struct {
	Notify  Notifier
	Archive ReportArchiver
}

func NewReportService(notify Notifier, archive ReportArchiver) *ReportService {
	return &ReportService{Notify: notify, Archive: archive}
}

func (s *ReportService) EmitWeekly(ctx context.Context, cfg *models.GuildConfig, guildID string, totalMessages int64, ranking []RankedUser, at time.Time) {
	report := WeeklyReport{
		Type:          "weekly_report",
		GuildID:       guildID,
		GeneratedAt:   at,
		TotalMessages: totalMessages,
		Ranking:       ranking,
	}
	key := fmt.Sprintf("reports/%s/%s-weekly.json", slug.Make(guildID), models.DayKey(at))
	report.ArchiveURL = s.archive(key, report)

	s.Notify.Announce(ctx, guildID, cfg.Reports.WeeklyChannel, report)
}

func (s *ReportService) EmitMonthly(ctx context.Context, cfg *models.GuildConfig, guildID string, activity store.GuildActivity, periodStart string, at time.Time) {
	report := MonthlyReport{
		Type:          "monthly_report",
		GuildID:       guildID,
		GeneratedAt:   at,
		PeriodStart:   periodStart,
		TotalMessages: activity.TotalMessages,
		ActiveUsers:   activity.ActiveUsers,
	}
	key := fmt.Sprintf("reports/%s/%s-monthly.json", slug.Make(guildID), models.DayKey(at))
	report.ArchiveURL = s.archive(key, report)

	s.Notify.Announce(ctx, guildID, cfg.Reports.MonthlyChannel, report)
}

func (s *ReportService) archive(key string, report interface{}) string {
	if s.Archive == nil {
		return ""
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("[REPORT] ⚠️ Failed to encode report %s: %v", key, err)
		return ""
	}
	url, err := s.Archive.ArchiveReport(key, data)
	if err != nil {
		log.Printf("[REPORT] ⚠️ Failed to archive report %s: %v", key, err)
		return ""
	}
	return url
}
