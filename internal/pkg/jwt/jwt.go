package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken   = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrTokenExpired     = errors.New("token has expired")
	ErrUnknownIssuer    = errors.New("token issuer is unknown")
	ErrWrongTokenType   = errors.New("wrong token type")
)

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims represents the JWT claims of both token kinds. Email and Role are
// only set on access tokens and are a snapshot taken at issuance.
type Claims struct {
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// PrincipalID parses the numeric subject
func (c *Claims) PrincipalID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: subject %q is not a principal id", ErrMalformedToken, c.Subject)
	}
	return uint(id), nil
}

// Codec signs and verifies compact HS256 tokens with a single server key.
// The algorithm is fixed: the header is never used to pick a verifier.
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

// NewCodec creates a codec for the given signing secret
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	return &Codec{
		secret: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Encode serializes and signs claims
func (c *Codec) Encode(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the signature of tokenString and decodes its payload into
// claims. Claim semantics (expiry, issuer, type) are left to the Validator.
func (c *Codec) Decode(tokenString string, claims jwt.Claims) error {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return ErrMalformedToken
	}
	for _, p := range parts {
		if p == "" {
			return ErrMalformedToken
		}
	}

	// Signature first, over the exact bytes received, so tampering with any
	// segment is reported the same way regardless of whether it still decodes.
	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return ErrInvalidSignature
	}

	_, err = c.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return ErrInvalidSignature
		default:
			return fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	return nil
}
