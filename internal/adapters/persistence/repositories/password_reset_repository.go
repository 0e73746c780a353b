package repositories

import (
	"context"
	"time"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/pkg/password"

	"gorm.io/gorm"
)

// passwordResetRepository implements PasswordResetRepository interface
type passwordResetRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPasswordResetRepository creates a new password reset repository
func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db, now: time.Now}
}

// Create stores the hash of a reset token
func (r *passwordResetRepository) Create(ctx context.Context, userID uint, token string, ttl time.Duration) error {
	record := &models.PasswordReset{
		UserID:    userID,
		TokenHash: password.HashToken(token),
		ExpiresAt: r.now().Add(ttl),
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// Consume looks up an unexpired reset token and deletes it in one transaction
func (r *passwordResetRepository) Consume(ctx context.Context, token string) (uint, error) {
	var userID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PasswordReset
		if err := tx.
			Where("token_hash = ?", password.HashToken(token)).
			Where("expires_at > ?", r.now()).
			First(&record).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.PasswordReset{}, record.ID)
		if result.Error != nil {
			return result.Error
		}
		// Lost a race with a concurrent consumer
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		userID = record.UserID
		return nil
	})
	return userID, err
}

// DeleteAllForUser removes outstanding reset tokens of a user
func (r *passwordResetRepository) DeleteAllForUser(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.PasswordReset{}).Error
}

// DeleteExpired deletes all expired reset tokens (cleanup job)
func (r *passwordResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Delete(&models.PasswordReset{})
	return result.RowsAffected, result.Error
}
