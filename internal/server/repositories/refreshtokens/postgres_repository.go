package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyagerhq/auth-service/internal/common"
	"github.com/voyagerhq/auth-service/internal/dbx"
	"github.com/voyagerhq/auth-service/internal/server/models"
	"github.com/voyagerhq/auth-service/internal/shared"
)

// rawTokenBytes gives 256 bits of entropy per token (64 hex chars on the wire).
const rawTokenBytes = 32

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx). Rotation callers bind it to a transaction so the
// consume-and-create pair commits atomically.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, familyID string, validity time.Duration) (string, error) {
	raw, err := shared.MakeRandHexString(rawTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}

	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, family_id, expires_at)
		VALUES ($1, $2, $3, $4)`

	_, err = r.db.ExecContext(ctx, query,
		userID, shared.HashToken(raw), familyID, time.Now().Add(validity))
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	return raw, nil
}

// Consume is the rotation-critical step: a single conditional UPDATE, so two
// concurrent rotations of the same token cannot both see it live.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
		RETURNING id, user_id, token_hash, family_id, expires_at, created_at, revoked_at`

	return r.scanOne(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *PostgresRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, family_id, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE family_id = $1 AND revoked_at IS NULL`

	return r.execCount(ctx, query, familyID)
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL`

	return r.execCount(ctx, query, userID)
}

// EnforceSessionLimit keeps the newest max live tokens. Ordering by
// created_at (id as tie-breaker) means a token inserted concurrently with
// the eviction query can only land on the "keep" side.
func (r *PostgresRepository) EnforceSessionLimit(ctx context.Context, userID int64, max int) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()
		AND id NOT IN (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)`

	return r.execCount(ctx, query, userID, max)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, retain time.Duration) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`
	return r.execCount(ctx, query, time.Now().Add(-retain))
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.RefreshToken, error) {
	var (
		t         models.RefreshToken
		revokedAt sql.NullTime
	)

	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID,
		&t.ExpiresAt, &t.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}
