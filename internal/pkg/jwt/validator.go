package jwt

import (
	"errors"
	"fmt"
	"time"
)

// Validator checks signature, required claims, expiry, issuer and type
type Validator struct {
	codec  *Codec
	issuer string
	now    func() time.Time
}

// NewValidator creates a validator sharing the issuer's policy
func NewValidator(codec *Codec, cfg Config) (*Validator, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Validator{codec: codec, issuer: cfg.Issuer, now: cfg.Now}, nil
}

// Validate decodes tokenString and returns its claims. An empty expected type
// accepts both kinds.
func (v *Validator) Validate(tokenString string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	if err := v.codec.Decode(tokenString, claims); err != nil {
		return nil, err
	}
	if err := requireClaims(claims); err != nil {
		return nil, err
	}

	if claims.ExpiresAt.Unix() < v.now().Unix() {
		return nil, ErrTokenExpired
	}
	if claims.Issuer != v.issuer {
		return nil, ErrUnknownIssuer
	}
	if expected != "" && claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrWrongTokenType, expected, claims.Type)
	}

	return claims, nil
}

func requireClaims(c *Claims) error {
	if c.ExpiresAt == nil || c.IssuedAt == nil || c.Issuer == "" {
		return fmt.Errorf("%w: missing registered claims", ErrMalformedToken)
	}
	if _, err := c.PrincipalID(); err != nil {
		return err
	}
	switch c.Type {
	case TokenTypeAccess:
		if c.Email == "" || c.Role == "" {
			return fmt.Errorf("%w: access token without email or role", ErrMalformedToken)
		}
	case TokenTypeRefresh:
	default:
		return fmt.Errorf("%w: unknown token type %q", ErrMalformedToken, c.Type)
	}
	return nil
}
