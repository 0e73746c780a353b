package repositories

import (
	"context"
	"time"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/pkg/password"

	"gorm.io/gorm"
)

// refreshTokenRepository implements RefreshTokenStore on the SQL database
type refreshTokenRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenStore {
	return &refreshTokenRepository{db: db, now: time.Now}
}

// Store persists a refresh token valid for ttl
func (r *refreshTokenRepository) Store(ctx context.Context, userID uint, token string, ttl time.Duration) error {
	record := &models.RefreshToken{
		UserID:    userID,
		TokenHash: password.HashToken(token),
		ExpiresAt: r.now().Add(ttl),
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// IsValid reports whether an unexpired record exists for userID and token
func (r *refreshTokenRepository) IsValid(ctx context.Context, userID uint, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND token_hash = ?", userID, password.HashToken(token)).
		Where("expires_at > ?", r.now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Remove deletes the matching record and reports whether it existed.
// Missing records are not an error.
func (r *refreshTokenRepository) Remove(ctx context.Context, userID uint, token string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, password.HashToken(token)).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RemoveAllForUser deletes every refresh token of a user
func (r *refreshTokenRepository) RemoveAllForUser(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.RefreshToken{}).Error
}

// CountActive counts active tokens for a user
func (r *refreshTokenRepository) CountActive(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).
		Where("expires_at > ?", r.now()).
		Count(&count).Error
	return count, err
}

// PruneExpired deletes all expired tokens (cleanup job)
func (r *refreshTokenRepository) PruneExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
