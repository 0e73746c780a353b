package middleware

import (
	"errors"
	"strings"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/config"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/core/services"
	"mindfeed-auth/internal/pkg/jwt"
	"mindfeed-auth/internal/pkg/observability"
	"mindfeed-auth/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AccessTokenCookie is the cookie the access token is also delivered in
const AccessTokenCookie = "access_token"

// ExtractToken returns the bearer token of a request. The Authorization
// header wins over the cookie. The token query parameter is read only on
// GET/HEAD and only when allowQuery is set.
func ExtractToken(c *fiber.Ctx, allowQuery bool) string {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		scheme, token, found := strings.Cut(authHeader, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	if token := c.Cookies(AccessTokenCookie); token != "" {
		return token
	}

	if allowQuery && (c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead) {
		return c.Query("token")
	}
	return ""
}

// AuthMiddleware requires any active principal
func AuthMiddleware(gate *services.AuthorizationGate, cfg *config.Config) fiber.Handler {
	return RequireRole(gate, cfg, domain.RoleUser)
}

// RequireRole resolves the principal through the gate and checks its live
// role against min
func RequireRole(gate *services.AuthorizationGate, cfg *config.Config, min domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c, cfg.Auth.AllowQueryToken)
		if token == "" {
			return response.Unauthorized(c, "Access token required")
		}

		user, err := gate.RequireRole(c.UserContext(), token, min)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrForbidden):
				return response.Forbidden(c, "You don't have permission to access this resource")
			case errors.Is(err, jwt.ErrTokenExpired):
				return response.Unauthorized(c, "Access token expired")
			case errors.Is(err, domain.ErrUnauthenticated):
				return response.Unauthorized(c, "Invalid access token")
			default:
				observability.CaptureError(err, map[string]string{"component": "auth_middleware"})
				return response.InternalServerError(c, "Failed to authenticate request")
			}
		}

		setPrincipal(c, user)
		return c.Next()
	}
}

// ModeratorOrAdmin allows moderator and admin roles
func ModeratorOrAdmin(gate *services.AuthorizationGate, cfg *config.Config) fiber.Handler {
	return RequireRole(gate, cfg, domain.RoleModerator)
}

// AdminOnly allows only the admin role
func AdminOnly(gate *services.AuthorizationGate, cfg *config.Config) fiber.Handler {
	return RequireRole(gate, cfg, domain.RoleAdmin)
}

// OptionalAuth doesn't require auth but sets the principal if a valid token is present
func OptionalAuth(gate *services.AuthorizationGate, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := ExtractToken(c, cfg.Auth.AllowQueryToken); token != "" {
			if user, err := gate.CurrentPrincipal(c.UserContext(), token); err == nil {
				setPrincipal(c, user)
			}
		}
		return c.Next()
	}
}

// CurrentUser returns the principal resolved by the auth middleware
func CurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals("user").(*models.User)
	return user, ok && user != nil
}

func setPrincipal(c *fiber.Ctx, user *models.User) {
	c.Locals("user", user)
	c.Locals("userID", user.ID)
	c.Locals("role", user.Role)
}
