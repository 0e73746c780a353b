package main

import (
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mindfeed-auth/internal/adapters/http/middleware"
	"mindfeed-auth/internal/adapters/http/routes"
	"mindfeed-auth/internal/adapters/messaging"
	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/adapters/persistence/repositories"
	"mindfeed-auth/internal/config"
	"mindfeed-auth/internal/core/services"
	"mindfeed-auth/internal/pkg/jwt"
	"mindfeed-auth/internal/pkg/observability"
	"mindfeed-auth/internal/pkg/password"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	_ "mindfeed-auth/docs" // Swagger docs
)

// @title MindFeed Auth API
// @version 1.0
// @description Token-based authentication and account administration for MindFeed

// @contact.name API Support
// @contact.email support@mindfeed.app

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppMode); err != nil {
		log.Printf("⚠️ Warning: Sentry disabled: %v", err)
	}
	defer observability.FlushSentry()

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase(db)

	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	passwords, err := password.NewManager(cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("❌ Invalid bcrypt cost: %v", err)
	}

	if err := config.NewSeeder(db, passwords, cfg.AdminSeed).Run(); err != nil {
		log.Printf("⚠️ Warning: Failed to seed admin user: %v", err)
	}

	rdb, refreshTokens, err := buildTokenStore(cfg, db)
	if err != nil {
		log.Fatalf("❌ Failed to set up refresh token store: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	events, eventsCloser := buildEventPublisher(cfg)
	defer eventsCloser.Close()

	// Token codec, issuer and validator share one policy
	codec, err := jwt.NewCodec([]byte(cfg.JWT.Secret))
	if err != nil {
		log.Fatalf("❌ Invalid JWT secret: %v", err)
	}
	jwtCfg := jwt.Config{
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}
	issuer, err := jwt.NewIssuer(codec, jwtCfg)
	if err != nil {
		log.Fatalf("❌ Invalid token policy: %v", err)
	}
	validator, err := jwt.NewValidator(codec, jwtCfg)
	if err != nil {
		log.Fatalf("❌ Invalid token policy: %v", err)
	}

	// Repositories & services
	userRepo := repositories.NewUserRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	gate := services.NewAuthorizationGate(validator, userRepo)
	authService, err := services.NewAuthService(services.AuthDeps{
		Users:          userRepo,
		RefreshTokens:  refreshTokens,
		PasswordResets: resetRepo,
		Passwords:      passwords,
		Issuer:         issuer,
		Validator:      validator,
		Gate:           gate,
		Events:         events,
	}, services.AuthServiceConfig{
		RefreshRotation:  cfg.Auth.RefreshRotation,
		PasswordResetTTL: cfg.Auth.PasswordResetTTL,
	})
	if err != nil {
		log.Fatalf("❌ Failed to create auth service: %v", err)
	}
	userService := services.NewUserService(userRepo, refreshTokens, auditRepo, passwords, events)

	// Start cron for expired token cleanup
	cronService := services.NewCronService(cfg.PruneSchedule, refreshTokens, resetRepo)
	if err := cronService.Start(); err != nil {
		log.Fatalf("❌ Failed to start cron: %v", err)
	}
	defer cronService.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "MindFeed Auth API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	middleware.Setup(app, cfg)

	routes.Setup(app, cfg, routes.Dependencies{
		DB:          db,
		Redis:       rdb,
		AuthService: authService,
		UserService: userService,
		Gate:        gate,
	})

	// Graceful shutdown
	go gracefulShutdown(app)

	log.Printf("🚀 Server starting on port %s [MODE: %s, TOKEN STORE: %s]", cfg.Port, cfg.AppMode, cfg.Auth.TokenStore)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("❌ Failed to start server: %v", err)
	}
}

// buildTokenStore picks the refresh token store. The Redis client is
// returned so health checks can ping it; it is nil for the database store.
func buildTokenStore(cfg *config.Config, db *gorm.DB) (*redis.Client, repositories.RefreshTokenStore, error) {
	if cfg.Auth.TokenStore != config.TokenStoreRedis {
		log.Println("✅ Refresh tokens stored in database")
		return nil, repositories.NewRefreshTokenRepository(db), nil
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("✅ Refresh tokens stored in Redis [%s]", cfg.Redis.Addr)
	return rdb, repositories.NewRedisRefreshTokenStore(rdb, cfg.Redis.KeyPrefix), nil
}

// buildEventPublisher connects to RabbitMQ when configured and falls back to
// logging events otherwise
func buildEventPublisher(cfg *config.Config) (services.EventPublisher, io.Closer) {
	if cfg.RabbitMQ.URL == "" {
		log.Println("⚠️ RABBITMQ_URL not set, auth events are only logged")
		return services.LogEventPublisher{}, io.NopCloser(nil)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
	if err != nil {
		log.Printf("⚠️ Warning: RabbitMQ unavailable, auth events are only logged: %v", err)
		observability.CaptureError(err, map[string]string{"component": "rabbitmq"})
		return services.LogEventPublisher{}, io.NopCloser(nil)
	}
	return publisher, publisher
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}
