package handlers

import (
	"errors"
	"log"

	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/pkg/jwt"
	"mindfeed-auth/internal/pkg/observability"
	"mindfeed-auth/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// handleError maps a service error onto the HTTP response. Anything not in
// the auth taxonomy is logged, reported and answered with fallback.
func handleError(c *fiber.Ctx, err error, fallback string) error {
	var weak *domain.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Password does not meet the strength policy", weak.Violations)
	case errors.Is(err, domain.ErrInvalidInput):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrInvalidRole):
		return response.BadRequest(c, "Invalid role")
	case errors.Is(err, domain.ErrSelfModification):
		return response.BadRequest(c, "Cannot change role or status of your own account")
	case errors.Is(err, domain.ErrInvalidResetToken):
		return response.BadRequest(c, "Invalid or expired reset token")

	case errors.Is(err, domain.ErrCredentialsInvalid):
		return response.Unauthorized(c, "Invalid email or password")
	case errors.Is(err, domain.ErrRevokedToken):
		return response.Unauthorized(c, "Refresh token revoked, please login again")
	case errors.Is(err, jwt.ErrTokenExpired):
		return response.Unauthorized(c, "Token expired")
	case errors.Is(err, jwt.ErrWrongTokenType):
		return response.Unauthorized(c, "Wrong token type")
	case errors.Is(err, jwt.ErrMalformedToken),
		errors.Is(err, jwt.ErrInvalidSignature),
		errors.Is(err, jwt.ErrUnknownIssuer):
		return response.Unauthorized(c, "Invalid token")
	case errors.Is(err, domain.ErrUnauthenticated):
		return response.Unauthorized(c, "Unauthorized")

	case errors.Is(err, domain.ErrForbidden):
		return response.Forbidden(c, "You don't have permission to access this resource")
	case errors.Is(err, domain.ErrUserNotFound):
		return response.NotFound(c, "User not found")
	case errors.Is(err, domain.ErrDuplicateIdentity):
		return response.Conflict(c, "Email or username already exists")
	}

	log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
	observability.CaptureError(err, map[string]string{
		"method": c.Method(),
		"path":   c.Path(),
	})
	return response.InternalServerError(c, fallback)
}

// currentUserID reads the principal id stored by the auth middleware
func currentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("userID").(uint)
	return id, ok && id != 0
}
