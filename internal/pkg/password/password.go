package password

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the default bcrypt cost
	DefaultCost = 12

	// MinLength is the minimum password length in characters
	MinLength = 8

	// MaxBytes is the longest input bcrypt accepts
	MaxBytes = 72

	// ResetTokenBytes is the entropy of a password reset token
	ResetTokenBytes = 32
)

// Strength rule messages
const (
	RuleMinLength = "Password must be at least 8 characters long"
	RuleMaxLength = "Password must be at most 72 bytes long"
	RuleUppercase = "Password must contain at least one uppercase letter"
	RuleLowercase = "Password must contain at least one lowercase letter"
	RuleDigit     = "Password must contain at least one number"
	RuleSymbol    = "Password must contain at least one special character"
)

// Manager hashes and verifies passwords with a fixed bcrypt cost
type Manager struct {
	cost int
}

// NewManager creates a password manager. cost must be a valid bcrypt cost.
func NewManager(cost int) (*Manager, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Manager{cost: cost}, nil
}

// Cost returns the configured bcrypt cost
func (m *Manager) Cost() int {
	return m.cost
}

// Hash hashes a password using bcrypt
func (m *Manager) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify compares a password with a hash
func (m *Manager) Verify(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NeedsRehash reports whether hash was produced with a weaker cost than the
// current policy. Unparseable hashes always need rehashing.
func (m *Manager) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < m.cost
}

// StrengthResult lists every rule a password violates
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateStrength checks if password meets requirements
func ValidateStrength(password string) StrengthResult {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	errs := make([]string, 0, 6)
	if utf8.RuneCountInString(password) < MinLength {
		errs = append(errs, RuleMinLength)
	}
	if len(password) > MaxBytes {
		errs = append(errs, RuleMaxLength)
	}
	if !hasUpper {
		errs = append(errs, RuleUppercase)
	}
	if !hasLower {
		errs = append(errs, RuleLowercase)
	}
	if !hasDigit {
		errs = append(errs, RuleDigit)
	}
	if !hasSymbol {
		errs = append(errs, RuleSymbol)
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}

// GenerateResetToken returns a random hex token used as a one-time lookup key
func GenerateResetToken() (string, error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken hashes a token using SHA256 (for refresh and reset tokens)
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
