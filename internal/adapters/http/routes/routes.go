package routes

import (
	"mindfeed-auth/internal/adapters/http/handlers"
	"mindfeed-auth/internal/adapters/http/middleware"
	"mindfeed-auth/internal/config"
	"mindfeed-auth/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependencies are the services and connections the routes are bound to.
// Redis is nil when refresh tokens live in the database.
type Dependencies struct {
	DB          *gorm.DB
	Redis       *redis.Client
	AuthService *services.AuthService
	UserService *services.UserService
	Gate        *services.AuthorizationGate
}

// Setup configures all routes for the application
func Setup(app *fiber.App, cfg *config.Config, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, cfg.AppMode)
	authHandler := handlers.NewAuthHandler(deps.AuthService, cfg)
	userHandler := handlers.NewUserHandler(deps.UserService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	setupAuthRoutes(apiV1.Group("/auth"), authHandler, deps.Gate, cfg)

	profileRoutes := apiV1.Group("/profile")
	profileRoutes.Use(middleware.AuthMiddleware(deps.Gate, cfg))
	setupProfileRoutes(profileRoutes, userHandler)

	userRoutes := apiV1.Group("/users")
	userRoutes.Use(middleware.ModeratorOrAdmin(deps.Gate, cfg))
	setupUserRoutes(userRoutes, userHandler, deps.Gate, cfg)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, gate *services.AuthorizationGate, cfg *config.Config) {
	// Public routes
	router.Post("/register", middleware.AuthRateLimiter(), handler.Register)
	router.Post("/login", middleware.AuthRateLimiter(), handler.Login)
	router.Post("/refresh", handler.RefreshToken)
	router.Post("/logout", handler.Logout)
	router.Get("/me", handler.Me)

	// Password reset (3 req/min/IP)
	router.Post("/password/forgot", middleware.StrictRateLimiter(), handler.ForgotPassword)
	router.Post("/password/reset", middleware.StrictRateLimiter(), handler.ResetPassword)

	// Protected routes
	router.Post("/logout-all", middleware.AuthMiddleware(gate, cfg), handler.LogoutAll)
}

// setupProfileRoutes configures profile routes (Authenticated)
func setupProfileRoutes(router fiber.Router, handler *handlers.UserHandler) {
	router.Get("/", handler.GetProfile)
	router.Put("/", handler.UpdateProfile)
	router.Put("/password", handler.ChangePassword)
}

// setupUserRoutes configures user management routes. The group already
// requires moderator; mutations additionally require admin. Static paths are
// registered before /:id.
func setupUserRoutes(router fiber.Router, handler *handlers.UserHandler, gate *services.AuthorizationGate, cfg *config.Config) {
	adminOnly := middleware.AdminOnly(gate, cfg)

	router.Get("/", handler.ListUsers)
	router.Get("/stats", handler.Stats)
	router.Get("/audit", adminOnly, handler.AuditLogs)
	router.Get("/:id", handler.GetUser)
	router.Patch("/:id/role", adminOnly, handler.SetUserRole)
	router.Post("/:id/deactivate", adminOnly, handler.Deactivate)
}
