package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/adapters/persistence/repositories"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/pkg/pagination"
	"mindfeed-auth/internal/pkg/password"
)

// Audit actions
const (
	AuditActionRoleChanged = "role_changed"
	AuditActionDeactivated = "deactivated"
)

// UserService handles account administration and self-service profile edits
type UserService struct {
	userRepo      repositories.UserRepository
	refreshTokens repositories.RefreshTokenStore
	auditLogs     repositories.AuditLogRepository
	passwords     *password.Manager
	events        EventPublisher
	now           func() time.Time
}

// NewUserService creates a new user service
func NewUserService(
	userRepo repositories.UserRepository,
	refreshTokens repositories.RefreshTokenStore,
	auditLogs repositories.AuditLogRepository,
	passwords *password.Manager,
	events EventPublisher,
) *UserService {
	if events == nil {
		events = LogEventPublisher{}
	}
	return &UserService{
		userRepo:      userRepo,
		refreshTokens: refreshTokens,
		auditLogs:     auditLogs,
		passwords:     passwords,
		events:        events,
		now:           time.Now,
	}
}

// ListUsersInput represents list users input
type ListUsersInput struct {
	Page   int
	Limit  int
	Search string
	Role   string
}

// ListUsersOutput represents list users output
type ListUsersOutput struct {
	Users []*models.UserResponse `json:"users"`
	Meta  *pagination.Meta       `json:"meta"`
}

// Statistics summarises active accounts
type Statistics struct {
	TotalUsers int64                    `json:"total_users"`
	ByRole     []repositories.RoleCount `json:"by_role"`
	NewToday   int64                    `json:"new_today"`
}

// UpdateProfileInput represents update profile input (for self)
type UpdateProfileInput struct {
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

// ChangePasswordInput represents change password input
type ChangePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// AuditLogOutput is one page of audit entries
type AuditLogOutput struct {
	Entries []*models.AuditLog `json:"entries"`
	Meta    *pagination.Meta   `json:"meta"`
}

// ListUsers lists users with pagination, optional search and role filter
func (s *UserService) ListUsers(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
	filter := repositories.UserFilter{Search: strings.TrimSpace(input.Search)}
	if input.Role != "" {
		role, err := domain.ParseRole(input.Role)
		if err != nil {
			return nil, err
		}
		filter.Role = role
	}

	params := pagination.NewParams(input.Page, input.Limit)
	users, total, err := s.userRepo.List(ctx, filter, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.UserResponse, len(users))
	for i, user := range users {
		responses[i] = user.ToResponse()
	}

	return &ListUsersOutput{
		Users: responses,
		Meta:  pagination.GetMeta(params, total),
	}, nil
}

// GetStatistics counts active users, active users per role and today's signups
func (s *UserService) GetStatistics(ctx context.Context) (*Statistics, error) {
	total, err := s.userRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	byRole, err := s.userRepo.CountActiveByRole(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	newToday, err := s.userRepo.CountCreatedSince(ctx, startOfDay)
	if err != nil {
		return nil, err
	}

	if byRole == nil {
		byRole = []repositories.RoleCount{}
	}
	return &Statistics{TotalUsers: total, ByRole: byRole, NewToday: newToday}, nil
}

// GetUserByID gets a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.UserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

// UpdateRole changes the role of another user
func (s *UserService) UpdateRole(ctx context.Context, id, actorID uint, rawRole string) (*models.UserResponse, error) {
	if id == actorID {
		return nil, domain.ErrSelfModification
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Role

	if err := s.userRepo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	user.Role = role

	log.Printf("✅ Role changed for user %d: %s -> %s (by %d)", id, previous, role, actorID)
	s.audit(ctx, actorID, AuditActionRoleChanged, id, map[string]string{
		"from": previous.String(),
		"to":   role.String(),
	})
	publishEvent(ctx, s.events, newAuthEvent(s.now(), domain.EventUserRoleChanged, user.ID, user.Email, actorID, map[string]string{
		"from": previous.String(),
		"to":   role.String(),
	}))

	return user.ToResponse(), nil
}

// Deactivate disables another user's account and revokes their refresh tokens
func (s *UserService) Deactivate(ctx context.Context, id, actorID uint) error {
	if id == actorID {
		return domain.ErrSelfModification
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.userRepo.Deactivate(ctx, id); err != nil {
		return err
	}
	if err := s.refreshTokens.RemoveAllForUser(ctx, id); err != nil {
		return err
	}

	log.Printf("✅ User %d deactivated (by %d)", id, actorID)
	s.audit(ctx, actorID, AuditActionDeactivated, id, nil)
	publishEvent(ctx, s.events, newAuthEvent(s.now(), domain.EventUserDeactivated, user.ID, user.Email, actorID, nil))
	return nil
}

// ListAuditLogs lists administrative actions, optionally for one target user
func (s *UserService) ListAuditLogs(ctx context.Context, targetID uint, page, limit int) (*AuditLogOutput, error) {
	params := pagination.NewParams(page, limit)
	entries, total, err := s.auditLogs.List(ctx, targetID, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}
	return &AuditLogOutput{Entries: entries, Meta: pagination.GetMeta(params, total)}, nil
}

// UpdateProfile updates own profile. Only the profile columns are written, so
// a concurrent role change or deactivation is never overwritten.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, input *UpdateProfileInput) (*models.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := repositories.ProfileUpdate{
		Username:  user.Username,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		Bio:       user.Bio,
	}

	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username == "" || len(username) > 50 {
			return nil, fmt.Errorf("%w: username must be 1-50 characters", domain.ErrInvalidInput)
		}
		if username != user.Username {
			exists, err := s.userRepo.ExistsByUsername(ctx, username, user.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, fmt.Errorf("%w: username", domain.ErrDuplicateIdentity)
			}
			profile.Username = username
		}
	}
	if input.FullName != nil {
		profile.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.AvatarURL != nil {
		profile.AvatarURL = strings.TrimSpace(*input.AvatarURL)
	}
	if input.Bio != nil {
		profile.Bio = *input.Bio
	}

	if err := s.userRepo.UpdateProfile(ctx, user.ID, profile); err != nil {
		return nil, err
	}

	updated, err := s.getUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return updated.ToResponse(), nil
}

// ChangePassword verifies the old password, applies the strength policy and
// revokes every refresh token of the user
func (s *UserService) ChangePassword(ctx context.Context, userID uint, input *ChangePasswordInput) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !s.passwords.Verify(input.OldPassword, user.PasswordHash) {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrCredentialsInvalid)
	}
	if result := password.ValidateStrength(input.NewPassword); !result.Valid {
		return &domain.WeakPasswordError{Violations: result.Errors}
	}

	hash, err := s.passwords.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.refreshTokens.RemoveAllForUser(ctx, user.ID); err != nil {
		return err
	}

	log.Printf("✅ Password changed for user ID: %d", user.ID)
	publishEvent(ctx, s.events, newAuthEvent(s.now(), domain.EventPasswordChanged, user.ID, user.Email, 0, map[string]string{"via": "profile"}))
	return nil
}

func (s *UserService) getUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// audit records an admin action. Failures are logged only.
func (s *UserService) audit(ctx context.Context, adminID uint, action string, targetID uint, details map[string]string) {
	if s.auditLogs == nil {
		return
	}
	entry := &models.AuditLog{
		AdminID:    adminID,
		Action:     action,
		TargetType: "user",
		TargetID:   targetID,
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = string(raw)
		}
	}
	if err := s.auditLogs.Create(ctx, entry); err != nil {
		log.Printf("⚠️ Failed to write audit log %s for user %d: %v", action, targetID, err)
	}
}
