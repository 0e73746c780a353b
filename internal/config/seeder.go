package config

import (
	"errors"
	"log"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/pkg/password"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db        *gorm.DB
	passwords *password.Manager
	admin     AdminSeedConfig
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, passwords *password.Manager, admin AdminSeedConfig) *Seeder {
	return &Seeder{db: db, passwords: passwords, admin: admin}
}

// Run executes all seeders
func (s *Seeder) Run() error {
	log.Println("🌱 Running database seeders...")

	if err := s.seedAdminUser(); err != nil {
		log.Printf("⚠️ Admin seeder skipped: %v", err)
	}

	log.Println("✅ Database seeding completed")
	return nil
}

// seedAdminUser creates the bootstrap admin when none exists yet
func (s *Seeder) seedAdminUser() error {
	if s.admin.Email == "" || s.admin.Password == "" {
		return errors.New("ADMIN_EMAIL or ADMIN_PASSWORD not set")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", domain.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if result := password.ValidateStrength(s.admin.Password); !result.Valid {
		return &domain.WeakPasswordError{Violations: result.Errors}
	}
	hash, err := s.passwords.Hash(s.admin.Password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:     s.admin.Username,
		Email:        s.admin.Email,
		PasswordHash: hash,
		FullName:     "System Administrator",
		Role:         domain.RoleAdmin,
		IsVerified:   true,
		IsActive:     true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Admin user created: %s", admin.Username)
	return nil
}
