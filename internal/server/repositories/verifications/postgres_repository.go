package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voyagerhq/auth-service/internal/common"
	"github.com/voyagerhq/auth-service/internal/dbx"
	"github.com/voyagerhq/auth-service/internal/server/models"
	"github.com/voyagerhq/auth-service/internal/shared"
)

const rawTokenBytes = 32

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, validity time.Duration) (string, error) {
	raw, err := shared.MakeRandHexString(rawTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating verification token: %w", err)
	}

	query := `
		INSERT INTO email_verification_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)`

	_, err = r.db.ExecContext(ctx, query,
		userID, shared.HashToken(raw), time.Now().Add(validity))
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	return raw, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	query := `
		UPDATE email_verification_tokens
		SET consumed_at = now()
		WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > now()
		RETURNING id, user_id, token_hash, expires_at, created_at, consumed_at`

	var (
		t          models.EmailVerificationToken
		consumedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if consumedAt.Valid {
		t.ConsumedAt = &consumedAt.Time
	}
	return &t, nil
}
