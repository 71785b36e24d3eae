package models

import "time"

// RefreshToken is the persisted record of one issued refresh credential.
// Only the SHA-256 hash of the raw token is stored. Tokens sharing FamilyID
// form the linear chain descended from one login; revocation is a timestamp,
// never a delete, so reuse of a superseded token stays detectable.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	FamilyID  string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token has been revoked (superseded by
// rotation, logged out, or burned with its family on reuse detection).
func (t *RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// Expired reports whether the token is past its natural expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool { return t.ExpiresAt.Before(now) }
