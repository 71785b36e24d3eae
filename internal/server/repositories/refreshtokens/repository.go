// Package refreshtokens declares the server-side repository contract for
// durable, hashed-at-rest refresh tokens grouped into rotation families.
package refreshtokens

import (
	"context"
	"time"

	"github.com/voyagerhq/auth-service/internal/server/models"
)

// Repository defines operations for issuing, consuming, and revoking refresh
// tokens. Raw token values never reach storage: rows carry only the SHA-256
// hash. Revocation is always a timestamp, never a delete, so an
// already-rotated token presented again is still recognizable as reuse.
type Repository interface {
	// Create generates a new raw token (>=256 bits of entropy), persists its
	// hash with an expiry of now+validity, and returns the raw value. An
	// empty familyID starts a new family; otherwise the token joins the
	// given family (rotation continuity).
	Create(ctx context.Context, userID int64, familyID string, validity time.Duration) (string, error)

	// Consume atomically revokes the live, unexpired token with the given
	// hash and returns it. common.ErrorNotFound means no such live token:
	// the caller must Find to tell "absent/expired" from "revoked" (reuse).
	Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Find returns the token row regardless of state, or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke marks the token revoked. Revoking an already-revoked or
	// unknown token is not an error (logout is idempotent).
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeFamily revokes every live token in the family and returns how
	// many rows it touched. Used when reuse is detected.
	RevokeFamily(ctx context.Context, familyID string) (int64, error)

	// RevokeAllForUser revokes every live token for the user (password
	// change, global logout).
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)

	// EnforceSessionLimit revokes all but the newest max live tokens for
	// the user, ordered by creation time, and returns how many it evicted.
	EnforceSessionLimit(ctx context.Context, userID int64, max int) (int64, error)

	// DeleteExpired hard-deletes rows that have been past expiry for at
	// least retain. Unexpired rows are never deleted, revoked or not, so
	// reuse detection keeps its full audit trail. Housekeeping only.
	DeleteExpired(ctx context.Context, retain time.Duration) (int64, error)
}
