package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/handlers"
	"zero-olympiad/middleware"
	"zero-olympiad/models"
	"zero-olympiad/services"
	"zero-olympiad/utils"
	"zero-olympiad/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := services.Metrics()
	store := services.NewRoundStore(db)
	settingsService := services.NewSettingsService(db, cfg.Catalog)
	if err := settingsService.EnsureDefaults(ctx); err != nil {
		log.Fatal("failed to seed competition settings: ", err)
	}

	var objects services.ObjectStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Storage(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		objects = r2
	} else {
		log.Println("⚠️  R2 not configured, profile image upload disabled")
	}

	var gateway services.PaymentGateway
	if cfg.BKash.Enabled() {
		gateway = services.NewBKashClient(cfg.BKash, db, utils.HTTPClient)
	} else {
		log.Println("⚠️  bKash not configured, payment routes will answer 503")
	}

	participantService := services.NewParticipantService(db, store, cfg.Catalog, objects, cfg.PaymentRequired)
	paymentService := services.NewPaymentService(db, gateway, cfg.RegistrationFee, cfg.FrontendURL)
	leaderboardService := services.NewLeaderboardService(db, cfg.Catalog, settingsService)
	competition := handlers.Competition{
		Settings:    settingsService,
		Quizzes:     services.NewQuizService(db, store, settingsService, cfg.Catalog, metrics),
		Submissions: services.NewSubmissionService(store, settingsService, metrics),
		Jury:        services.NewJuryService(db, store, cfg.Catalog, metrics),
		Promotion:   services.NewPromotionService(db, store, cfg.Catalog, metrics),
		Leaderboard: leaderboardService,
		Export:      services.NewExportService(leaderboardService, cfg.Catalog),
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Session-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, "/", "/api/bkash/callback"))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "zero-olympiad"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if cfg.GatewayToken == "" && cfg.JWTSecret == "" {
		log.Println("⚠️  neither GATEWAY_TOKEN nor JWT_SECRET set, every request is anonymous")
	}
	api := app.Group("/api",
		middleware.UserContextMiddleware(middleware.IdentityConfig{
			JWTSecret:       cfg.JWTSecret,
			GatewayEnforced: cfg.GatewayToken != "",
		}),
		middleware.ProfileRoleMiddleware(db),
	)
	handlers.SetupParticipantRoutes(api, participantService, paymentService)
	handlers.SetupPaymentRoutes(api, paymentService)
	handlers.SetupCompetitionRoutes(api, competition)
	handlers.SetupCommunityRoutes(api, services.NewAnnouncementService(db), services.NewAmbassadorService(db))

	outbox := workers.NewOutboxWorker(db, services.NewMailer(cfg.Email, utils.HTTPClient), metrics)
	if err := outbox.Start(ctx); err != nil {
		log.Fatal("failed to start email outbox: ", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)
	log.Printf("✅ Catalog: %d rounds, %d categories", cfg.Catalog.Rounds, len(cfg.Catalog.Categories))

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
