package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer     = "mindfeed-auth"
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config holds token policy shared by Issuer and Validator
type Config struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

func (c Config) normalize() (Config, error) {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.AccessTTL < time.Second || c.RefreshTTL < time.Second {
		return c, errors.New("token TTLs must be at least one second")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c, nil
}

// Issuer mints access and refresh tokens
type Issuer struct {
	codec *Codec
	cfg   Config
}

// NewIssuer creates a token issuer
func NewIssuer(codec *Codec, cfg Config) (*Issuer, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Issuer{codec: codec, cfg: cfg}, nil
}

// AccessTTL returns the lifetime of access tokens
func (i *Issuer) AccessTTL() time.Duration {
	return i.cfg.AccessTTL
}

// RefreshTTL returns the lifetime of refresh tokens
func (i *Issuer) RefreshTTL() time.Duration {
	return i.cfg.RefreshTTL
}

// IssueAccessToken generates a new access token
func (i *Issuer) IssueAccessToken(principalID uint, email, role string) (string, error) {
	claims := i.baseClaims(principalID, TokenTypeAccess, i.cfg.AccessTTL)
	claims.Email = email
	claims.Role = role
	return i.codec.Encode(claims)
}

// IssueRefreshToken generates a new refresh token
func (i *Issuer) IssueRefreshToken(principalID uint) (string, error) {
	return i.codec.Encode(i.baseClaims(principalID, TokenTypeRefresh, i.cfg.RefreshTTL))
}

func (i *Issuer) baseClaims(principalID uint, typ TokenType, ttl time.Duration) *Claims {
	iat := i.cfg.Now().Truncate(time.Second)
	return &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(principalID), 10),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}
}
