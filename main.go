package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"community-engagement-system/handlers"
	"community-engagement-system/middleware"
	"community-engagement-system/models"
	"community-engagement-system/services"
	"community-engagement-system/store"
	"community-engagement-system/utils"
	"community-engagement-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserEngagement{},
		&models.HeatmapBucket{},
		&models.Milestone{},
		&models.MetricIndexRecord{},
		&models.GuildConfig{},
		&models.JobState{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Report archiving is optional — without R2 credentials the reports
	// still post to channels, they just aren't archived.
	var archive services.ReportArchiver
	if os.Getenv("CLOUDFLARE_ACCOUNT_ID") != "" {
		if err := utils.InitR2(); err != nil {
			log.Printf("⚠️  Failed to initialize R2 client, report archiving disabled: %v", err)
		} else {
			archive = utils.R2Archive{}
		}
	} else {
		log.Println("⚠️  R2 not configured, report archiving disabled")
	}

	gatewayURL := os.Getenv("GATEWAY_SERVICE_URL")
	serviceToken := os.Getenv("ENGAGEMENT_SERVICE_TOKEN")
	var notifier services.Notifier = services.NopNotifier{}
	if gatewayURL != "" {
		notifier = services.NewGatewayNotifier(gatewayURL, serviceToken)
	} else {
		log.Println("⚠️  GATEWAY_SERVICE_URL not set — announcements and role changes are disabled")
	}

	recordStore := store.NewGormStore(db)
	configProvider := services.NewGormConfigProvider(db)
	reportService := services.NewReportService(notifier, archive)
	ingestService := services.NewIngestionService(recordStore, configProvider, notifier)
	leaderboardService := services.NewLeaderboardService(recordStore)
	rolloverService := services.NewRolloverService(recordStore, configProvider, notifier, reportService)

	// --- CONFIGURE Config Service Details ---
	configServiceURL := os.Getenv("CONFIG_SERVICE_URL")
	if configServiceURL == "" {
		log.Fatal("CONFIG_SERVICE_URL environment variable not set")
	}
	// --- END CONFIG ---

	configSyncWorker := workers.NewConfigSyncWorker(db, configServiceURL, "/api/v1/public/guild-configs", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configSyncWorker.Start(ctx)
	rolloverService.StartScheduler(ctx)

	handlers.SetupEngagementRoutes(app, ingestService, leaderboardService, rolloverService, recordStore)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Guild Config Sync Worker running")
	log.Println("✅ Rollover scheduler running (daily/weekly/monthly)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
