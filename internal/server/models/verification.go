package models

import "time"

// EmailVerificationToken is the hashed-at-rest record of an emailed
// verification link. Consumed exactly once.
type EmailVerificationToken struct {
	ID         int64
	UserID     int64
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
}
