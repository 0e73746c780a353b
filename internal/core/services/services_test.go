package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mindfeed-auth/internal/adapters/persistence/models"
	"mindfeed-auth/internal/adapters/persistence/repositories"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/pkg/jwt"
	"mindfeed-auth/internal/pkg/password"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const strongPassword = "Str0ng!Pass"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) last(typ domain.EventType) (domain.AuthEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return domain.AuthEvent{}, false
}

// failingStore accepts reads but refuses to persist new tokens
type failingStore struct {
	repositories.RefreshTokenStore
}

func (failingStore) Store(context.Context, uint, string, time.Duration) error {
	return errors.New("store unavailable")
}

// interleavingStore runs during once, right after the first IsValid check.
// during may call back into the store.
type interleavingStore struct {
	repositories.RefreshTokenStore
	fired  bool
	during func()
}

func (s *interleavingStore) IsValid(ctx context.Context, userID uint, token string) (bool, error) {
	ok, err := s.RefreshTokenStore.IsValid(ctx, userID, token)
	if s.during != nil && !s.fired {
		s.fired = true
		s.during()
	}
	return ok, err
}

// interleavingUsers runs beforeProfileWrite ahead of the profile write
type interleavingUsers struct {
	repositories.UserRepository
	beforeProfileWrite func()
}

func (u *interleavingUsers) UpdateProfile(ctx context.Context, id uint, profile repositories.ProfileUpdate) error {
	if u.beforeProfileWrite != nil {
		u.beforeProfileWrite()
	}
	return u.UserRepository.UpdateProfile(ctx, id, profile)
}

type testEnv struct {
	db        *gorm.DB
	users     repositories.UserRepository
	tokens    repositories.RefreshTokenStore
	resets    repositories.PasswordResetRepository
	audit     repositories.AuditLogRepository
	passwords *password.Manager
	validator *jwt.Validator
	gate      *AuthorizationGate
	auth      *AuthService
	userSvc   *UserService
	events    *recordingPublisher
	clock     *fakeClock
}

type envOption func(*AuthDeps, *AuthServiceConfig)

func withRotation() envOption {
	return func(_ *AuthDeps, cfg *AuthServiceConfig) { cfg.RefreshRotation = true }
}

func withFailingStore() envOption {
	return func(deps *AuthDeps, _ *AuthServiceConfig) {
		deps.RefreshTokens = failingStore{RefreshTokenStore: deps.RefreshTokens}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := &fakeClock{now: time.Now()}
	codec, err := jwt.NewCodec([]byte("services-test-secret-0123456789abcdef"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	jwtCfg := jwt.Config{Issuer: "mindfeed-test", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour, Now: clock.Now}
	issuer, err := jwt.NewIssuer(codec, jwtCfg)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	validator, err := jwt.NewValidator(codec, jwtCfg)
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	passwords, err := password.NewManager(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("password manager: %v", err)
	}

	env := &testEnv{
		db:        db,
		users:     repositories.NewUserRepository(db),
		tokens:    repositories.NewRefreshTokenRepository(db),
		resets:    repositories.NewPasswordResetRepository(db),
		audit:     repositories.NewAuditLogRepository(db),
		passwords: passwords,
		validator: validator,
		events:    &recordingPublisher{},
		clock:     clock,
	}
	env.gate = NewAuthorizationGate(validator, env.users)

	deps := AuthDeps{
		Users:          env.users,
		RefreshTokens:  env.tokens,
		PasswordResets: env.resets,
		Passwords:      passwords,
		Issuer:         issuer,
		Validator:      validator,
		Gate:           env.gate,
		Events:         env.events,
	}
	cfg := AuthServiceConfig{PasswordResetTTL: time.Hour, Now: clock.Now}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	env.auth, err = NewAuthService(deps, cfg)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	env.userSvc = NewUserService(env.users, env.tokens, env.audit, passwords, env.events)
	env.userSvc.now = clock.Now
	return env
}

func (e *testEnv) register(t *testing.T, email string) *AuthResponse {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), &RegisterInput{Email: email, Password: strongPassword})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return resp
}

func TestRegisterCreatesUserAndRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp := env.register(t, "a@b.com")
	if resp.User.Role != domain.RoleUser || resp.User.IsVerified || !resp.User.IsActive {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
	if resp.User.Username != "a" {
		t.Errorf("derived username = %q, want a", resp.User.Username)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if _, ok := env.events.last(domain.EventUserRegistered); !ok {
		t.Error("missing registered event")
	}

	_, err := env.auth.Register(ctx, &RegisterInput{Email: "a@b.com", Password: strongPassword})
	if !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Fatalf("duplicate register err = %v, want ErrDuplicateIdentity", err)
	}
	_, err = env.auth.Register(ctx, &RegisterInput{Email: "A@B.com ", Password: strongPassword})
	if !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Fatalf("case-variant register err = %v, want ErrDuplicateIdentity", err)
	}
	_, err = env.auth.Register(ctx, &RegisterInput{Email: "other@b.com", Password: strongPassword, Username: "a"})
	if !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Fatalf("duplicate username err = %v, want ErrDuplicateIdentity", err)
	}

	// Derived usernames never collide
	second, err := env.auth.Register(ctx, &RegisterInput{Email: "a@c.org", Password: strongPassword})
	if err != nil {
		t.Fatalf("register a@c.org: %v", err)
	}
	if second.User.Username == "a" {
		t.Error("derived username should be made unique")
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "Bob <bob@example.com>", "bob@localhost"} {
		_, err := env.auth.Register(ctx, &RegisterInput{Email: email, Password: strongPassword})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("email %q: err = %v, want ErrInvalidInput", email, err)
		}
	}

	_, err := env.auth.Register(ctx, &RegisterInput{Email: "weak@example.com", Password: "abc"})
	if !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("weak password err = %v", err)
	}
	var weak *domain.WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected *WeakPasswordError, got %T", err)
	}
	want := []string{password.RuleMinLength, password.RuleUppercase, password.RuleDigit, password.RuleSymbol}
	if len(weak.Violations) != len(want) {
		t.Fatalf("violations = %v, want %v", weak.Violations, want)
	}
	for i := range want {
		if weak.Violations[i] != want[i] {
			t.Fatalf("violations = %v, want %v", weak.Violations, want)
		}
	}
}

func TestLoginThenCurrentPrincipal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "login@example.com")

	resp, err := env.auth.Login(ctx, &LoginInput{Email: "Login@Example.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.LastLogin == nil {
		t.Error("last login not stamped")
	}

	principal, err := env.gate.CurrentPrincipal(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("CurrentPrincipal: %v", err)
	}
	if principal.ID != registered.User.ID || principal.ID != resp.User.ID {
		t.Fatalf("principal id = %d, want %d", principal.ID, registered.User.ID)
	}

	me, err := env.auth.Me(ctx, resp.AccessToken)
	if err != nil || me.ID != principal.ID {
		t.Fatalf("Me = %+v, %v", me, err)
	}

	// A refresh token is not an access token
	if _, err := env.gate.CurrentPrincipal(ctx, resp.RefreshToken); !errors.Is(err, jwt.ErrWrongTokenType) {
		t.Fatalf("refresh as access err = %v, want ErrWrongTokenType", err)
	}
}

func TestLoginFailuresAreNonEnumerable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "user@example.com")

	_, err := env.auth.Login(ctx, &LoginInput{Email: "user@example.com", Password: "Wr0ng!Pass"})
	if !errors.Is(err, domain.ErrCredentialsInvalid) {
		t.Fatalf("wrong password err = %v, want ErrCredentialsInvalid", err)
	}
	if errors.Is(err, domain.ErrUserNotFound) {
		t.Fatal("wrong password must not reveal user lookup result")
	}

	_, err = env.auth.Login(ctx, &LoginInput{Email: "ghost@example.com", Password: strongPassword})
	if !errors.Is(err, domain.ErrCredentialsInvalid) {
		t.Fatalf("unknown email err = %v, want ErrCredentialsInvalid", err)
	}

	if err := env.users.Deactivate(ctx, resp.User.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = env.auth.Login(ctx, &LoginInput{Email: "user@example.com", Password: strongPassword})
	if !errors.Is(err, domain.ErrCredentialsInvalid) {
		t.Fatalf("inactive login err = %v, want ErrCredentialsInvalid", err)
	}
}

func TestLoginRehashesWeakerHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "rehash@example.com")

	stronger, err := password.NewManager(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	env.auth.Passwords = stronger

	if _, err := env.auth.Login(ctx, &LoginInput{Email: "rehash@example.com", Password: strongPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}
	user, err := env.users.GetByID(ctx, resp.User.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(user.PasswordHash))
	if err != nil || cost != bcrypt.MinCost+1 {
		t.Fatalf("stored cost = %d, %v", cost, err)
	}
}

func TestAccessTokenExpiresWithClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "clock@example.com")

	env.clock.Advance(time.Hour + time.Second)

	_, err := env.gate.CurrentPrincipal(ctx, resp.AccessToken)
	if !errors.Is(err, domain.ErrUnauthenticated) || !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expired access err = %v", err)
	}

	// The refresh token outlives the access token
	refreshed, err := env.auth.Refresh(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := env.gate.CurrentPrincipal(ctx, refreshed.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "logout@example.com")

	if _, err := env.auth.Refresh(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("refresh before logout: %v", err)
	}
	if err := env.auth.Logout(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err := env.auth.Refresh(ctx, resp.RefreshToken)
	if !errors.Is(err, domain.ErrRevokedToken) {
		t.Fatalf("refresh after logout err = %v, want ErrRevokedToken", err)
	}
	// Structurally the token is still fine
	if _, err := env.validator.Validate(resp.RefreshToken, jwt.TokenTypeRefresh); err != nil {
		t.Fatalf("validator should still accept the token: %v", err)
	}

	// Logging out twice and logging out garbage are both acknowledged
	if err := env.auth.Logout(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := env.auth.Logout(ctx, "not.a.token"); err != nil {
		t.Fatalf("garbage logout: %v", err)
	}
}

func TestRefreshRejectsAccessTokenAndGarbage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "types@example.com")

	if _, err := env.auth.Refresh(ctx, resp.AccessToken); !errors.Is(err, jwt.ErrWrongTokenType) {
		t.Fatalf("access as refresh err = %v", err)
	}
	if _, err := env.auth.Refresh(ctx, "garbage"); !errors.Is(err, jwt.ErrMalformedToken) {
		t.Fatalf("garbage refresh err = %v", err)
	}
}

func TestRefreshInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "inactive@example.com")

	if err := env.users.Deactivate(ctx, resp.User.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := env.auth.Refresh(ctx, resp.RefreshToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("inactive refresh err = %v, want ErrUnauthenticated", err)
	}
	if _, err := env.gate.CurrentPrincipal(ctx, resp.AccessToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("inactive principal err = %v, want ErrUnauthenticated", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t, withRotation())
	ctx := context.Background()
	resp := env.register(t, "rotate@example.com")

	rotated, err := env.auth.Refresh(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == "" || rotated.RefreshToken == resp.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := env.auth.Refresh(ctx, resp.RefreshToken); !errors.Is(err, domain.ErrRevokedToken) {
		t.Fatalf("old refresh token err = %v, want ErrRevokedToken", err)
	}
	if _, err := env.auth.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated refresh token rejected: %v", err)
	}
}

func TestRotatedRefreshTokenIsSingleUse(t *testing.T) {
	store := &interleavingStore{}
	env := newTestEnv(t, withRotation(), func(deps *AuthDeps, _ *AuthServiceConfig) {
		store.RefreshTokenStore = deps.RefreshTokens
		deps.RefreshTokens = store
	})
	ctx := context.Background()
	resp := env.register(t, "replay@example.com")

	var inner *RefreshResponse
	var innerErr error
	store.during = func() {
		inner, innerErr = env.auth.Refresh(ctx, resp.RefreshToken)
	}

	outer, outerErr := env.auth.Refresh(ctx, resp.RefreshToken)

	if innerErr != nil {
		t.Fatalf("first completed refresh: %v", innerErr)
	}
	if inner == nil || inner.RefreshToken == "" {
		t.Fatal("first completed refresh must rotate")
	}
	if !errors.Is(outerErr, domain.ErrRevokedToken) {
		t.Fatalf("replayed refresh err = %v, resp = %+v, want ErrRevokedToken", outerErr, outer)
	}

	active, err := env.tokens.CountActive(ctx, resp.User.ID)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if active != 1 {
		t.Fatalf("active refresh tokens = %d, want 1", active)
	}
}

func TestStoreFailureStillIssuesTokens(t *testing.T) {
	degraded := newTestEnv(t, withFailingStore())
	ctx := context.Background()

	resp, err := degraded.auth.Register(ctx, &RegisterInput{Email: "degraded@example.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("register with failing store: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("tokens must still be returned")
	}
	if _, err := degraded.auth.Refresh(ctx, resp.RefreshToken); !errors.Is(err, domain.ErrRevokedToken) {
		t.Fatalf("unpersisted refresh token err = %v, want ErrRevokedToken", err)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	env.events.err = errors.New("broker down")

	resp := env.register(t, "broker@example.com")
	if _, err := env.auth.Login(context.Background(), &LoginInput{Email: "broker@example.com", Password: strongPassword}); err != nil {
		t.Fatalf("login with failing publisher: %v", err)
	}
	if resp.User.ID == 0 {
		t.Fatal("user not created")
	}
}

func TestStaleRoleClaimResolvesLiveRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "promote@example.com")
	oldToken := resp.AccessToken

	if _, err := env.gate.RequireRole(ctx, oldToken, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("user requiring admin err = %v, want ErrForbidden", err)
	}

	if err := env.users.UpdateRole(ctx, resp.User.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}

	fresh, err := env.auth.Login(ctx, &LoginInput{Email: "promote@example.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("re-login: %v", err)
	}
	if _, err := env.gate.RequireRole(ctx, fresh.AccessToken, domain.RoleAdmin); err != nil {
		t.Fatalf("fresh token requiring admin: %v", err)
	}

	// The old token still claims role user but resolves to the live admin
	claims, err := env.validator.Validate(oldToken, jwt.TokenTypeAccess)
	if err != nil || claims.Role != string(domain.RoleUser) {
		t.Fatalf("old token claims = %+v, %v", claims, err)
	}
	principal, err := env.gate.RequireRole(ctx, oldToken, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("old token requiring admin: %v", err)
	}
	if principal.Role != domain.RoleAdmin {
		t.Fatalf("live role = %q", principal.Role)
	}
	if _, err := env.gate.RequireRole(ctx, oldToken, domain.RoleModerator); err != nil {
		t.Fatalf("admin should satisfy moderator: %v", err)
	}

	// Demotion takes effect immediately as well
	if err := env.users.UpdateRole(ctx, resp.User.ID, domain.RoleUser); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if _, err := env.gate.RequireRole(ctx, fresh.AccessToken, domain.RoleModerator); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("demoted user err = %v, want ErrForbidden", err)
	}
}

func TestCurrentPrincipalRejectsMissingAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.gate.CurrentPrincipal(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("empty bearer err = %v", err)
	}

	resp := env.register(t, "gone@example.com")
	if err := env.db.Delete(&models.User{}, resp.User.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	_, err := env.gate.CurrentPrincipal(ctx, resp.AccessToken)
	if !errors.Is(err, domain.ErrUnauthenticated) || !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("deleted user err = %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.register(t, "many@example.com")
	second, err := env.auth.Login(ctx, &LoginInput{Email: "many@example.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.auth.LogoutAll(ctx, first.User.ID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := env.auth.Refresh(ctx, token); !errors.Is(err, domain.ErrRevokedToken) {
			t.Fatalf("refresh after LogoutAll err = %v", err)
		}
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "forgot@example.com")

	if err := env.auth.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should be acknowledged: %v", err)
	}
	if _, ok := env.events.last(domain.EventPasswordResetRequested); ok {
		t.Fatal("no event expected for unknown email")
	}

	if err := env.auth.RequestPasswordReset(ctx, "forgot@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	event, ok := env.events.last(domain.EventPasswordResetRequested)
	if !ok || event.UserID != resp.User.ID {
		t.Fatalf("reset event = %+v, %v", event, ok)
	}
	token := event.Data["reset_token"]
	if len(token) != 2*password.ResetTokenBytes {
		t.Fatalf("reset token = %q", token)
	}

	if err := env.auth.ResetPassword(ctx, token, "weak"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("weak reset err = %v", err)
	}
	if err := env.auth.ResetPassword(ctx, "bogus", "N3w!Password"); !errors.Is(err, domain.ErrInvalidResetToken) {
		t.Fatalf("bogus token err = %v", err)
	}
	if err := env.auth.ResetPassword(ctx, token, "N3w!Password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := env.auth.ResetPassword(ctx, token, "N3w!Password"); !errors.Is(err, domain.ErrInvalidResetToken) {
		t.Fatalf("reused token err = %v", err)
	}

	if _, err := env.auth.Refresh(ctx, resp.RefreshToken); !errors.Is(err, domain.ErrRevokedToken) {
		t.Fatalf("refresh after reset err = %v", err)
	}
	if _, err := env.auth.Login(ctx, &LoginInput{Email: "forgot@example.com", Password: strongPassword}); !errors.Is(err, domain.ErrCredentialsInvalid) {
		t.Fatalf("old password err = %v", err)
	}
	if _, err := env.auth.Login(ctx, &LoginInput{Email: "forgot@example.com", Password: "N3w!Password"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUserServiceUpdateRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.register(t, "admin@example.com")
	target := env.register(t, "target@example.com")

	if _, err := env.userSvc.UpdateRole(ctx, admin.User.ID, admin.User.ID, "user"); !errors.Is(err, domain.ErrSelfModification) {
		t.Fatalf("self role change err = %v", err)
	}
	if _, err := env.userSvc.UpdateRole(ctx, target.User.ID, admin.User.ID, "superuser"); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("invalid role err = %v", err)
	}
	if _, err := env.userSvc.UpdateRole(ctx, 9999, admin.User.ID, "admin"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("missing user err = %v", err)
	}

	updated, err := env.userSvc.UpdateRole(ctx, target.User.ID, admin.User.ID, "Moderator")
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Role != domain.RoleModerator {
		t.Fatalf("role = %q", updated.Role)
	}

	event, ok := env.events.last(domain.EventUserRoleChanged)
	if !ok || event.ActorID != admin.User.ID || event.Data["to"] != "moderator" {
		t.Fatalf("role event = %+v", event)
	}
	logs, err := env.userSvc.ListAuditLogs(ctx, target.User.ID, 1, 10)
	if err != nil || logs.Meta.Total != 1 || logs.Entries[0].Action != AuditActionRoleChanged {
		t.Fatalf("audit logs = %+v, %v", logs, err)
	}
}

func TestUserServiceDeactivateRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.register(t, "root@example.com")
	target := env.register(t, "victim@example.com")

	if err := env.userSvc.Deactivate(ctx, admin.User.ID, admin.User.ID); !errors.Is(err, domain.ErrSelfModification) {
		t.Fatalf("self deactivate err = %v", err)
	}
	if err := env.userSvc.Deactivate(ctx, target.User.ID, admin.User.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if _, err := env.auth.Refresh(ctx, target.RefreshToken); !errors.Is(err, domain.ErrRevokedToken) {
		t.Fatalf("refresh after deactivate err = %v", err)
	}
	if _, err := env.gate.CurrentPrincipal(ctx, target.AccessToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("access after deactivate err = %v", err)
	}
	if _, ok := env.events.last(domain.EventUserDeactivated); !ok {
		t.Error("missing deactivated event")
	}
}

func TestUserServiceListAndStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "one@example.com")
	env.register(t, "two@example.com")
	mod := env.register(t, "three@example.com")
	if err := env.users.UpdateRole(ctx, mod.User.ID, domain.RoleModerator); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}

	out, err := env.userSvc.ListUsers(ctx, &ListUsersInput{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(out.Users) != 2 || out.Meta.Total != 3 || !out.Meta.HasNext {
		t.Fatalf("page = %d users, meta %+v", len(out.Users), out.Meta)
	}

	out, err = env.userSvc.ListUsers(ctx, &ListUsersInput{Role: "moderator"})
	if err != nil || out.Meta.Total != 1 {
		t.Fatalf("role filter = %+v, %v", out, err)
	}
	if _, err := env.userSvc.ListUsers(ctx, &ListUsersInput{Role: "root"}); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("bad role filter err = %v", err)
	}

	stats, err := env.userSvc.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalUsers != 3 || stats.NewToday != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.ByRole) != 2 {
		t.Fatalf("by role = %+v", stats.ByRole)
	}
}

func TestUserServiceProfileAndPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	me := env.register(t, "self@example.com")
	env.register(t, "taken@example.com")

	taken := "taken"
	if _, err := env.userSvc.UpdateProfile(ctx, me.User.ID, &UpdateProfileInput{Username: &taken}); !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Fatalf("duplicate username err = %v", err)
	}
	name, bio := "Self Person", "hello"
	profile, err := env.userSvc.UpdateProfile(ctx, me.User.ID, &UpdateProfileInput{FullName: &name, Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if profile.FullName != name || profile.Bio != bio || profile.Username != "self" {
		t.Fatalf("profile = %+v", profile)
	}

	err = env.userSvc.ChangePassword(ctx, me.User.ID, &ChangePasswordInput{OldPassword: "wrong", NewPassword: "N3w!Password"})
	if !errors.Is(err, domain.ErrCredentialsInvalid) {
		t.Fatalf("wrong old password err = %v", err)
	}
	err = env.userSvc.ChangePassword(ctx, me.User.ID, &ChangePasswordInput{OldPassword: strongPassword, NewPassword: "short"})
	if !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("weak new password err = %v", err)
	}
	err = env.userSvc.ChangePassword(ctx, me.User.ID, &ChangePasswordInput{OldPassword: strongPassword, NewPassword: "N3w!Password"})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := env.auth.Refresh(ctx, me.RefreshToken); !errors.Is(err, domain.ErrRevokedToken) {
		t.Fatalf("refresh after password change err = %v", err)
	}
}

func TestProfileSaveKeepsConcurrentDemotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "demoted@example.com")
	id := resp.User.ID

	if err := env.users.UpdateRole(ctx, id, domain.RoleModerator); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := env.gate.RequireRole(ctx, resp.AccessToken, domain.RoleModerator); err != nil {
		t.Fatalf("moderator rejected before demotion: %v", err)
	}

	users := &interleavingUsers{UserRepository: env.users}
	users.beforeProfileWrite = func() {
		if err := env.users.UpdateRole(ctx, id, domain.RoleUser); err != nil {
			t.Errorf("demote: %v", err)
		}
		if err := env.users.Deactivate(ctx, id); err != nil {
			t.Errorf("deactivate: %v", err)
		}
	}
	svc := NewUserService(users, env.tokens, env.audit, env.passwords, env.events)

	bio := "still here"
	profile, err := svc.UpdateProfile(ctx, id, &UpdateProfileInput{Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if profile.Bio != bio {
		t.Fatalf("bio = %q, want %q", profile.Bio, bio)
	}

	stored, err := env.users.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Role != domain.RoleUser || stored.IsActive {
		t.Fatalf("role = %s active = %v, want user and inactive", stored.Role, stored.IsActive)
	}
	if _, err := env.gate.RequireRole(ctx, resp.AccessToken, domain.RoleModerator); err == nil {
		t.Fatal("demoted and deactivated principal still authorized")
	}
}

func TestOverlongPasswordIsWeak(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	long := strongPassword + strings.Repeat("x", password.MaxBytes)

	_, err := env.auth.Register(ctx, &RegisterInput{Email: "long@example.com", Password: long})
	var weak *domain.WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("register err = %v, want *WeakPasswordError", err)
	}
	if len(weak.Violations) != 1 || weak.Violations[0] != password.RuleMaxLength {
		t.Fatalf("violations = %v", weak.Violations)
	}

	me := env.register(t, "short@example.com")
	err = env.userSvc.ChangePassword(ctx, me.User.ID, &ChangePasswordInput{OldPassword: strongPassword, NewPassword: long})
	if !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("change password err = %v, want ErrWeakPassword", err)
	}
}

func TestCronPruneExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "cron@example.com")

	if err := env.tokens.Store(ctx, resp.User.ID, "already-expired", -time.Minute); err != nil {
		t.Fatalf("store expired: %v", err)
	}
	if err := env.resets.Create(ctx, resp.User.ID, "old-reset", -time.Minute); err != nil {
		t.Fatalf("create expired reset: %v", err)
	}

	cron := NewCronService("@every 1h", env.tokens, env.resets)
	refresh, resets, err := cron.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if refresh != 1 || resets != 1 {
		t.Fatalf("pruned = %d/%d, want 1/1", refresh, resets)
	}
	if _, err := env.auth.Refresh(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("live token pruned: %v", err)
	}

	if err := NewCronService("not a schedule", env.tokens, env.resets).Start(); err == nil {
		t.Fatal("invalid schedule accepted")
	}
	if err := cron.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cron.Stop()
}
