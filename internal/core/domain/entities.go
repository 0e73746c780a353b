package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role represents user role in the system
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// roleLevels orders roles for "at least" comparisons
var roleLevels = map[Role]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// Roles lists every valid role from lowest to highest privilege
func Roles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin}
}

// ParseRole converts a raw string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the privilege level of r. Unknown roles have no privileges.
func (r Role) Level() int {
	if lvl, ok := roleLevels[r]; ok {
		return lvl
	}
	return -1
}

// AtLeast reports whether r satisfies a minimum role requirement
func (r Role) AtLeast(min Role) bool {
	if !r.Valid() || !min.Valid() {
		return false
	}
	return r.Level() >= min.Level()
}

func (r Role) String() string {
	return string(r)
}

// EventType identifies an auth event published for downstream consumers
type EventType string

const (
	EventUserRegistered         EventType = "user.registered"
	EventUserLoggedIn           EventType = "user.logged_in"
	EventUserLoggedOut          EventType = "user.logged_out"
	EventUserRoleChanged        EventType = "user.role_changed"
	EventUserDeactivated        EventType = "user.deactivated"
	EventPasswordChanged        EventType = "user.password_changed"
	EventPasswordResetRequested EventType = "user.password_reset_requested"
)

// AuthEvent is the message published for every auth state change. Data may
// carry one-time secrets (reset tokens) and must never be logged.
type AuthEvent struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	UserID     uint              `json:"user_id"`
	ActorID    uint              `json:"actor_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
