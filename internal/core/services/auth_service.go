package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/adapters/persistence/repositories"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/pkg/jwt"
	"mindfeed-auth/internal/pkg/observability"
	"mindfeed-auth/internal/pkg/password"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// timingDummyPassword is hashed once at startup and compared against for
// unknown emails so login latency does not reveal which emails exist
const timingDummyPassword = "mindfeed-timing-equaliser"

// AuthServiceConfig holds session policy for the auth service
type AuthServiceConfig struct {
	RefreshRotation  bool
	PasswordResetTTL time.Duration
	Now              func() time.Time
}

// AuthDeps groups the collaborators of AuthService
type AuthDeps struct {
	Users          repositories.UserRepository
	RefreshTokens  repositories.RefreshTokenStore
	PasswordResets repositories.PasswordResetRepository
	Passwords      *password.Manager
	Issuer         *jwt.Issuer
	Validator      *jwt.Validator
	Gate           *AuthorizationGate
	Events         EventPublisher
}

// AuthService handles authentication business logic
type AuthService struct {
	AuthDeps
	cfg       AuthServiceConfig
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(deps AuthDeps, cfg AuthServiceConfig) (*AuthService, error) {
	if deps.Users == nil || deps.RefreshTokens == nil || deps.Passwords == nil ||
		deps.Issuer == nil || deps.Validator == nil || deps.Gate == nil {
		return nil, errors.New("auth service: missing dependency")
	}
	if deps.Events == nil {
		deps.Events = LogEventPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = time.Hour
	}

	dummy, err := deps.Passwords.Hash(timingDummyPassword)
	if err != nil {
		return nil, err
	}

	return &AuthService{AuthDeps: deps, cfg: cfg, dummyHash: dummy}, nil
}

// RegisterInput represents registration input
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// LoginInput represents login input
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *models.UserResponse `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

// RefreshResponse carries a new access token. RefreshToken is only set when
// rotation is enabled.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Register creates a principal with role user and issues a token pair
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*AuthResponse, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if result := password.ValidateStrength(input.Password); !result.Valid {
		return nil, &domain.WeakPasswordError{Violations: result.Errors}
	}

	exists, err := s.Users.ExistsByEmail(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: email", domain.ErrDuplicateIdentity)
	}

	username := strings.TrimSpace(input.Username)
	if username != "" {
		exists, err = s.Users.ExistsByUsername(ctx, username, 0)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: username", domain.ErrDuplicateIdentity)
		}
	} else {
		username, err = s.deriveUsername(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	hash, err := s.Passwords.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(input.FullName),
		Role:         domain.RoleUser,
		IsVerified:   false,
		IsActive:     true,
	}
	if err := s.Users.Create(ctx, user); err != nil {
		// Lost a race against a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateIdentity
		}
		return nil, err
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ User registered: %s (ID: %d)", user.Username, user.ID)
	s.publish(ctx, domain.EventUserRegistered, user, 0, nil)
	return resp, nil
}

// Login authenticates by email and password. Unknown email, wrong password
// and inactive account are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			s.Passwords.Verify(input.Password, s.dummyHash)
			return nil, domain.ErrCredentialsInvalid
		}
		return nil, err
	}

	if !s.Passwords.Verify(input.Password, user.PasswordHash) {
		return nil, domain.ErrCredentialsInvalid
	}
	if !user.IsActive {
		return nil, domain.ErrCredentialsInvalid
	}

	if s.Passwords.NeedsRehash(user.PasswordHash) {
		if hash, err := s.Passwords.Hash(input.Password); err == nil {
			if err := s.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
				log.Printf("⚠️ Password rehash failed for user %d: %v", user.ID, err)
			} else {
				user.PasswordHash = hash
			}
		}
	}

	now := s.cfg.Now()
	if err := s.Users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("⚠️ Failed to update last login for user %d: %v", user.ID, err)
	} else {
		user.LastLogin = &now
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ User logged in: %s", user.Username)
	s.publish(ctx, domain.EventUserLoggedIn, user, 0, nil)
	return resp, nil
}

// Refresh exchanges a stored refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	claims, err := s.Validator.Validate(refreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, err := claims.PrincipalID()
	if err != nil {
		return nil, err
	}

	valid, err := s.RefreshTokens.IsValid(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, domain.ErrRevokedToken
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrUserNotFound)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account inactive", domain.ErrUnauthenticated)
	}

	// Rotation consumes the old token before anything is issued. Only the
	// caller whose delete removed the record may continue.
	if s.cfg.RefreshRotation {
		removed, err := s.RefreshTokens.Remove(ctx, user.ID, refreshToken)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, domain.ErrRevokedToken
		}
	}

	access, err := s.Issuer.IssueAccessToken(user.ID, user.Email, user.Role.String())
	if err != nil {
		return nil, err
	}
	resp := &RefreshResponse{AccessToken: access}

	if s.cfg.RefreshRotation {
		next, err := s.Issuer.IssueRefreshToken(user.ID)
		if err != nil {
			return nil, err
		}
		s.storeRefreshToken(ctx, user.ID, next)
		resp.RefreshToken = next
	}

	return resp, nil
}

// Logout removes a refresh token. Invalid or expired tokens are acknowledged
// without action.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.Validator.Validate(refreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil
	}
	userID, err := claims.PrincipalID()
	if err != nil {
		return nil
	}

	if _, err := s.RefreshTokens.Remove(ctx, userID, refreshToken); err != nil {
		return err
	}

	log.Printf("✅ User logged out (ID: %d)", userID)
	s.emit(ctx, s.newEvent(domain.EventUserLoggedOut, userID, "", 0, nil))
	return nil
}

// LogoutAll revokes every refresh token of a user
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) error {
	if err := s.RefreshTokens.RemoveAllForUser(ctx, userID); err != nil {
		return err
	}

	log.Printf("✅ All sessions revoked for user ID: %d", userID)
	s.emit(ctx, s.newEvent(domain.EventUserLoggedOut, userID, "", 0, map[string]string{"scope": "all"}))
	return nil
}

// Me resolves the live principal behind an access token
func (s *AuthService) Me(ctx context.Context, accessToken string) (*models.User, error) {
	return s.Gate.CurrentPrincipal(ctx, accessToken)
}

// RequestPasswordReset creates a one-time reset token and hands it to the
// mail consumer via an event. Unknown or inactive emails are acknowledged
// the same way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if s.PasswordResets == nil {
		return errors.New("password reset is not configured")
	}

	user, err := s.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, err := password.GenerateResetToken()
	if err != nil {
		return err
	}
	if err := s.PasswordResets.Create(ctx, user.ID, token, s.cfg.PasswordResetTTL); err != nil {
		return err
	}

	expiresAt := s.cfg.Now().Add(s.cfg.PasswordResetTTL).UTC().Format(time.RFC3339)
	s.publish(ctx, domain.EventPasswordResetRequested, user, 0, map[string]string{
		"reset_token": token,
		"expires_at":  expiresAt,
	})
	log.Printf("✅ Password reset requested for user ID: %d", user.ID)
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every refresh token of the user
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.PasswordResets == nil {
		return errors.New("password reset is not configured")
	}
	if result := password.ValidateStrength(newPassword); !result.Valid {
		return &domain.WeakPasswordError{Violations: result.Errors}
	}

	userID, err := s.PasswordResets.Consume(ctx, token)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrInvalidResetToken
		}
		return err
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrInvalidResetToken
		}
		return err
	}

	hash, err := s.Passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.PasswordResets.DeleteAllForUser(ctx, user.ID); err != nil {
		log.Printf("⚠️ Failed to clear reset tokens for user %d: %v", user.ID, err)
	}
	if err := s.RefreshTokens.RemoveAllForUser(ctx, user.ID); err != nil {
		return err
	}

	log.Printf("✅ Password reset completed for user ID: %d", user.ID)
	s.publish(ctx, domain.EventPasswordChanged, user, 0, map[string]string{"via": "reset"})
	return nil
}

// issueSession issues an access/refresh pair and persists the refresh token
func (s *AuthService) issueSession(ctx context.Context, user *models.User) (*AuthResponse, error) {
	access, err := s.Issuer.IssueAccessToken(user.ID, user.Email, user.Role.String())
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.storeRefreshToken(ctx, user.ID, refresh)

	return &AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// storeRefreshToken persists a refresh token. A storage failure does not fail
// the login: the tokens are still returned and the caller's later refresh
// will be rejected as revoked.
func (s *AuthService) storeRefreshToken(ctx context.Context, userID uint, token string) {
	if err := s.RefreshTokens.Store(ctx, userID, token, s.Issuer.RefreshTTL()); err != nil {
		log.Printf("❌ Failed to store refresh token for user %d: %v", userID, err)
		observability.CaptureError(err, map[string]string{
			"component": "refresh_token_store",
			"user_id":   fmt.Sprint(userID),
		})
	}
}

// deriveUsername builds a unique username from the email local part
func (s *AuthService) deriveUsername(ctx context.Context, email string) (string, error) {
	base := email[:strings.IndexByte(email, '@')]
	if len(base) > 40 {
		base = base[:40]
	}

	candidate := base
	for i := 0; i < 5; i++ {
		exists, err := s.Users.ExistsByUsername(ctx, candidate, 0)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + uuid.NewString()[:6]
	}
	return "", fmt.Errorf("%w: username", domain.ErrDuplicateIdentity)
}

func (s *AuthService) publish(ctx context.Context, typ domain.EventType, user *models.User, actorID uint, data map[string]string) {
	s.emit(ctx, s.newEvent(typ, user.ID, user.Email, actorID, data))
}

func (s *AuthService) emit(ctx context.Context, event domain.AuthEvent) {
	publishEvent(ctx, s.Events, event)
}

func (s *AuthService) newEvent(typ domain.EventType, userID uint, email string, actorID uint, data map[string]string) domain.AuthEvent {
	return newAuthEvent(s.cfg.Now(), typ, userID, email, actorID, data)
}

// publishEvent delivers an event. Failures are logged and never returned.
func publishEvent(ctx context.Context, events EventPublisher, event domain.AuthEvent) {
	if err := events.Publish(ctx, event); err != nil {
		log.Printf("⚠️ Failed to publish %s event for user %d: %v", event.Type, event.UserID, err)
	}
}

func newAuthEvent(now time.Time, typ domain.EventType, userID uint, email string, actorID uint, data map[string]string) domain.AuthEvent {
	return domain.AuthEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		ActorID:    actorID,
		Email:      email,
		Data:       data,
		OccurredAt: now.UTC(),
	}
}

// normalizeEmail lowercases and validates a bare email address
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.IndexByte(email, '@')+1:], ".") {
		return "", fmt.Errorf("%w: invalid email format", domain.ErrInvalidInput)
	}
	return email, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
