package domain

import (
	"errors"
	"strings"
)

// Auth errors. Token structure errors live in pkg/jwt.
var (
	ErrRevokedToken       = errors.New("refresh token revoked")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrCredentialsInvalid = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrDuplicateIdentity  = errors.New("email or username already registered")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// User errors
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidRole      = errors.New("invalid role")
	ErrSelfModification = errors.New("cannot change role or status of your own account")
)

// WeakPasswordError carries every violated strength rule
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *WeakPasswordError) Is(target error) bool {
	return target == ErrWeakPassword
}
