// Package users declares the server-side repository contract for identity
// records (the user directory).
package users

import (
	"context"

	"github.com/voyagerhq/auth-service/internal/server/models"
)

// Repository defines lookup and mutation operations for users. Emails are
// compared case-folded; implementations store them lower-cased. Users are
// never hard-deleted here.
type Repository interface {
	// Create inserts the user and fills in the generated id and timestamps.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindByID returns the user or common.ErrorNotFound.
	FindByID(ctx context.Context, id int64) (*models.User, error)

	// FindByEmail looks up by case-folded email.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByProvider looks up by federated identity.
	FindByProvider(ctx context.Context, provider, providerID string) (*models.User, error)

	// LinkProvider attaches a federated identity to an existing user.
	LinkProvider(ctx context.Context, id int64, provider, providerID string) error

	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, id int64, hash string) error

	// SetEmailVerified marks the user's email as verified.
	SetEmailVerified(ctx context.Context, id int64) error

	// TouchLastSeen bumps last_seen_at to now.
	TouchLastSeen(ctx context.Context, id int64) error
}
