package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse authorization claim carried inside access tokens.
// Permission-scope evaluation beyond this is out of scope for the auth core.
type Role string

const (
	RoleUser    Role = "user"
	RoleCurator Role = "curator"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCurator, RoleAdmin:
		return true
	}
	return false
}

// User is an identity record. A user always has a password hash or a
// provider identity (or both): local accounts carry a password, OAuth-only
// accounts may lack one. Users are never hard-deleted by this core.
type User struct {
	ID            int64
	UUID          uuid.UUID
	Email         string // case-folded, unique; empty when absent
	PasswordHash  string // empty for OAuth-only accounts
	DisplayName   string
	Role          Role
	AuthProvider  string // e.g. "google", "apple"; empty for local accounts
	ProviderID    string
	EmailVerified bool
	CreatedAt     time.Time
	LastSeenAt    time.Time
}

// HasPassword reports whether local password login is possible for the user.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }
