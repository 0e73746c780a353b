package services

import (
	"context"
	"fmt"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/pkg/jwt"
)

// AuthorizationGate resolves bearer tokens to live principals. The role claim
// inside the token is informational; decisions use the stored role.
type AuthorizationGate struct {
	validator *jwt.Validator
	users     PrincipalLookup
}

// NewAuthorizationGate creates a new authorization gate
func NewAuthorizationGate(validator *jwt.Validator, users PrincipalLookup) *AuthorizationGate {
	return &AuthorizationGate{validator: validator, users: users}
}

// CurrentPrincipal validates an access token and re-reads its user. Every
// failure is ErrUnauthenticated wrapping the cause.
func (g *AuthorizationGate) CurrentPrincipal(ctx context.Context, bearer string) (*models.User, error) {
	if bearer == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}

	claims, err := g.validator.Validate(bearer, jwt.TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	id, err := claims.PrincipalID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	user, err := g.users.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrUserNotFound)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account inactive", domain.ErrUnauthenticated)
	}
	return user, nil
}

// RequireRole resolves the principal and checks its live role against min
func (g *AuthorizationGate) RequireRole(ctx context.Context, bearer string, min domain.Role) (*models.User, error) {
	user, err := g.CurrentPrincipal(ctx, bearer)
	if err != nil {
		return nil, err
	}
	if !user.Role.AtLeast(min) {
		return nil, fmt.Errorf("%w: requires %s role", domain.ErrForbidden, min)
	}
	return user, nil
}
