package repositories

import (
	"context"
	"time"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/core/domain"
)

// UserFilter narrows user listings
type UserFilter struct {
	Search string
	Role   domain.Role
}

// RoleCount is one row of the users-by-role statistic
type RoleCount struct {
	Role  domain.Role `json:"role"`
	Count int64       `json:"count"`
}

// ProfileUpdate carries the profile columns a user may change on their own
type ProfileUpdate struct {
	Username  string
	FullName  string
	AvatarURL string
	Bio       string
}

// UserRepository defines user repository interface
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uint, profile ProfileUpdate) error
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
	UpdateRole(ctx context.Context, id uint, role domain.Role) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	Deactivate(ctx context.Context, id uint) error
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]*models.User, int64, error)
	ExistsByUsername(ctx context.Context, username string, excludeID uint) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID uint) (bool, error)
	CountActive(ctx context.Context) (int64, error)
	CountActiveByRole(ctx context.Context) ([]RoleCount, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

// RefreshTokenStore persists issued refresh tokens. IsValid is the
// authoritative revocation check: a signed refresh token that is not present
// here must be rejected.
type RefreshTokenStore interface {
	Store(ctx context.Context, userID uint, token string, ttl time.Duration) error
	IsValid(ctx context.Context, userID uint, token string) (bool, error)
	// Remove deletes the record and reports whether one existed. Exactly one of
	// several concurrent callers sees true.
	Remove(ctx context.Context, userID uint, token string) (bool, error)
	RemoveAllForUser(ctx context.Context, userID uint) error
	CountActive(ctx context.Context, userID uint) (int64, error)
	PruneExpired(ctx context.Context) (int64, error)
}

// PasswordResetRepository stores one-time password reset keys
type PasswordResetRepository interface {
	Create(ctx context.Context, userID uint, token string, ttl time.Duration) error
	// Consume deletes the reset key and returns its owner. Expired or unknown
	// keys return gorm.ErrRecordNotFound.
	Consume(ctx context.Context, token string) (uint, error)
	DeleteAllForUser(ctx context.Context, userID uint) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuditLogRepository records administrative actions
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, targetID uint, offset, limit int) ([]*models.AuditLog, int64, error)
}
