package models

import (
	"time"

	"mindfeed-auth/internal/core/domain"

	"gorm.io/gorm"
)

// User represents users table. Each row is an authenticated principal.
type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Username     string      `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email        string      `gorm:"uniqueIndex;size:100;not null" json:"email"`
	PasswordHash string      `gorm:"size:255;not null" json:"-"`
	FullName     string      `gorm:"size:100" json:"full_name"`
	AvatarURL    string      `gorm:"size:255" json:"avatar_url"`
	Bio          string      `gorm:"type:text" json:"bio"`
	Role         domain.Role `gorm:"size:20;index;not null;default:'user'" json:"role"`
	IsVerified   bool        `gorm:"not null;default:false" json:"is_verified"`
	IsActive     bool        `gorm:"not null;default:true" json:"is_active"`
	LastLogin    *time.Time  `json:"last_login"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID         uint        `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name,omitempty"`
	AvatarURL  string      `json:"avatar_url,omitempty"`
	Bio        string      `json:"bio,omitempty"`
	Role       domain.Role `json:"role"`
	IsVerified bool        `json:"is_verified"`
	IsActive   bool        `json:"is_active"`
	LastLogin  *time.Time  `json:"last_login,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		AvatarURL:  u.AvatarURL,
		Bio:        u.Bio,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		IsActive:   u.IsActive,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}

// RefreshToken represents refresh_tokens table. Only the SHA-256 of the
// token is stored.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_refresh_user_hash,priority:1;not null" json:"user_id"`
	TokenHash string    `gorm:"size:64;not null;index:idx_refresh_user_hash,priority:2" json:"-"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsExpired(now time.Time) bool {
	return !rt.ExpiresAt.After(now)
}

// PasswordReset represents password_resets table (one-time reset keys)
type PasswordReset struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	TokenHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (PasswordReset) TableName() string {
	return "password_resets"
}

// AuditLog represents admin_logs table: one row per administrative action
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AdminID    uint      `gorm:"index;not null" json:"admin_id"`
	Action     string    `gorm:"size:100;not null" json:"action"`
	TargetType string    `gorm:"size:50" json:"target_type"`
	TargetID   uint      `gorm:"index" json:"target_id"`
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	Admin      User      `gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE" json:"-"`
}

func (AuditLog) TableName() string {
	return "admin_logs"
}

// AutoMigrate creates or updates the auth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&PasswordReset{},
		&AuditLog{},
	)
}
