// handlers/engagement_routes.go
package handlers

import (
	"strconv"

	"community-engagement-system/services"
	"community-engagement-system/store"

	"github.com/gofiber/fiber/v2"
)

func SetupEngagementRoutes(app *fiber.App, ingest *services.IngestionService, leaderboard *services.LeaderboardService, rollover *services.RolloverService, st store.RecordStore) {
	// Gateway event intake — one call per delivered chat message.
	app.Post("/events/message", func(c *fiber.Ctx) error {
		var ev services.MessageEvent
		if err := c.BodyParser(&ev); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event body"})
		}
		if ev.GuildID == "" || ev.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "guild_id and user_id are required"})
		}

		if err := ingest.HandleMessage(c.Context(), ev); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to ingest message",
				"cause": err.Error(),
			})
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Get("/guilds/:guildId/leaderboard/:metric", func(c *fiber.Ctx) error {
		guildID := c.Params("guildId")
		metric := c.Params("metric")
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil || limit <= 0 {
			limit = 10
		} else if limit > 50 {
			limit = 50
		}

		board, err := leaderboard.Top(c.Context(), guildID, metric, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "leaderboard query failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(board)
	})

	app.Get("/guilds/:guildId/users/:userId", func(c *fiber.Ctx) error {
		u, err := st.GetUser(c.Context(), c.Params("guildId"), c.Params("userId"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load user state",
				"cause": err.Error(),
			})
		}
		if u == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no engagement record for user"})
		}
		return c.JSON(u)
	})

	// Manual streak edit (admin). Missing users are a no-op, not an error.
	app.Post("/guilds/:guildId/users/:userId/streak", func(c *fiber.Ctx) error {
		guildID := c.Params("guildId")
		userID := c.Params("userId")

		var req struct {
			Streak int `json:"streak"`
		}
		if err := c.BodyParser(&req); err != nil || req.Streak < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "streak must be a non-negative integer"})
		}

		u, err := st.GetUser(c.Context(), guildID, userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load user state",
				"cause": err.Error(),
			})
		}
		if u == nil {
			return c.JSON(fiber.Map{"status": "no-op", "reason": "no engagement record for user"})
		}

		highest := u.HighestStreak
		if req.Streak > highest {
			highest = req.Streak
		}
		patch := store.FieldPatch{
			Streak:        store.IntPtr(req.Streak),
			HighestStreak: store.IntPtr(highest),
		}
		if err := st.UpdateUserFields(c.Context(), guildID, userID, patch); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to update streak",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "streak": req.Streak, "highest_streak": highest})
	})

	// Manual weekly message counter reset (admin).
	app.Post("/guilds/:guildId/reset-messages", func(c *fiber.Ctx) error {
		result, err := rollover.ResetGuildMessages(c.Context(), c.Params("guildId"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to reset weekly counters",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "reset": result.Success, "failed": result.Failed})
	})
}
