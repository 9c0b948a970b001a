package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Notifier is the announcement/notification collaborator. Every call is
// fire-and-forget from the core's perspective: delivery failures are
// logged by the implementation and never surface as core failures.
type Notifier interface {
	GrantRole(ctx context.Context, guildID, userID, roleID string)
	RevokeRole(ctx context.Context, guildID, userID, roleID string)
	// ClearRole removes the role from every current holder in the guild.
	ClearRole(ctx context.Context, guildID, roleID string)
	Announce(ctx context.Context, guildID, channelID string, payload interface{})
	DirectMessage(ctx context.Context, userID string, payload interface{})
}

// Structured payloads the gateway renders into embeds/images.

type LevelUpAnnouncement struct {
	Type    string `json:"type"` // "level_up"
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	Level   int    `json:"level"`
}

type StreakMilestoneAnnouncement struct {
	Type    string `json:"type"` // "streak_milestone"
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	Streak  int    `json:"streak"`
	RoleID  string `json:"role_id,omitempty"`
}

type StreakLossNotice struct {
	Type       string `json:"type"` // "streak_loss"
	GuildID    string `json:"guild_id"`
	LostStreak int    `json:"lost_streak"`
}

type RankedUser struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Value  float64 `json:"value"`
}

type WeeklyLeaderAnnouncement struct {
	Type    string       `json:"type"` // "weekly_leader"
	GuildID string       `json:"guild_id"`
	Metric  string       `json:"metric"`
	Label   string       `json:"label"`
	Ranking []RankedUser `json:"ranking"` // gateway renders the podium image from this
}

// GatewayNotifier posts callbacks to the chat gateway service.
type GatewayNotifier struct {
	BaseURL      string
	ServiceToken string
	HTTPClient   *http.Client
}

func NewGatewayNotifier(baseURL, serviceToken string) *GatewayNotifier {
	return &GatewayNotifier{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ServiceToken: serviceToken,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// post fires one callback; errors are logged, never returned.
func (n *GatewayNotifier) post(ctx context.Context, path string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[NOTIFY] ⚠️ Failed to encode payload for %s: %v", path, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		log.Printf("[NOTIFY] ⚠️ Failed to build request for %s: %v", path, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", n.ServiceToken)

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		log.Printf("[NOTIFY] ❌ Gateway callback %s failed: %v", path, err)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[NOTIFY] ❌ Gateway callback %s returned %d: %s", path, resp.StatusCode, string(errBody))
	}
}

func (n *GatewayNotifier) GrantRole(ctx context.Context, guildID, userID, roleID string) {
	n.post(ctx, "/api/v1/callbacks/roles/grant", map[string]string{
		"guild_id": guildID, "user_id": userID, "role_id": roleID,
	})
}

func (n *GatewayNotifier) RevokeRole(ctx context.Context, guildID, userID, roleID string) {
	n.post(ctx, "/api/v1/callbacks/roles/revoke", map[string]string{
		"guild_id": guildID, "user_id": userID, "role_id": roleID,
	})
}

func (n *GatewayNotifier) ClearRole(ctx context.Context, guildID, roleID string) {
	n.post(ctx, "/api/v1/callbacks/roles/clear", map[string]string{
		"guild_id": guildID, "role_id": roleID,
	})
}

func (n *GatewayNotifier) Announce(ctx context.Context, guildID, channelID string, payload interface{}) {
	if channelID == "" {
		return
	}
	n.post(ctx, "/api/v1/callbacks/announce", map[string]interface{}{
		"guild_id": guildID, "channel_id": channelID, "payload": payload,
	})
}

func (n *GatewayNotifier) DirectMessage(ctx context.Context, userID string, payload interface{}) {
	n.post(ctx, "/api/v1/callbacks/dm", map[string]interface{}{
		"user_id": userID, "payload": payload,
	})
}

// NopNotifier drops everything (tests, or gateway callbacks not configured).
type NopNotifier struct{}

func (NopNotifier) GrantRole(context.Context, string, string, string)     {}
func (NopNotifier) RevokeRole(context.Context, string, string, string)    {}
func (NopNotifier) ClearRole(context.Context, string, string)             {}
func (NopNotifier) Announce(context.Context, string, string, interface{}) {}
func (NopNotifier) DirectMessage(context.Context, string, interface{})    {}

var titleCaser = cases.Title(language.English)

// MetricLabel turns a camelCase metric name into a human heading for
// announcements and reports, e.g. "messageLeaderWins" → "Message Leader Wins".
func MetricLabel(metric string) string {
	var b strings.Builder
	for i, r := range metric {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	words := strings.Fields(b.String())
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

// shortID is a log-friendly truncation of platform snowflake IDs.
func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return fmt.Sprintf("…%s", id[len(id)-6:])
}
