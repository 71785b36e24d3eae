// Package verifications declares the repository contract for email
// verification tokens. Like refresh tokens they are stored hashed and
// consumed at most once; unlike refresh tokens they have no families.
package verifications

import (
	"context"
	"time"

	"github.com/voyagerhq/auth-service/internal/server/models"
)

// Repository issues and consumes email verification tokens.
type Repository interface {
	// Create generates a raw token, persists its hash with an expiry of
	// now+validity, and returns the raw value for the email collaborator.
	Create(ctx context.Context, userID int64, validity time.Duration) (string, error)

	// Consume atomically marks the live, unexpired token consumed and
	// returns it, or common.ErrorNotFound.
	Consume(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error)
}
