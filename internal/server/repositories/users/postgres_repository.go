package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/voyagerhq/auth-service/internal/common"
	"github.com/voyagerhq/auth-service/internal/dbx"
	"github.com/voyagerhq/auth-service/internal/server/models"
)

const userColumns = `id, uuid, email, password_hash, display_name, role,
	auth_provider, provider_id, email_verified, created_at, last_seen_at`

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (uuid, email, password_hash, display_name, role,
			auth_provider, provider_id, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, last_seen_at`

	err := r.db.QueryRowContext(ctx, query,
		user.UUID,
		nullable(strings.ToLower(user.Email)),
		nullable(user.PasswordHash),
		user.DisplayName,
		string(user.Role),
		nullable(user.AuthProvider),
		nullable(user.ProviderID),
		user.EmailVerified,
	).Scan(&user.ID, &user.CreatedAt, &user.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Email = strings.ToLower(user.Email)
	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

func (r *PostgresRepository) FindByProvider(ctx context.Context, provider, providerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE auth_provider = $1 AND provider_id = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, provider, providerID))
}

func (r *PostgresRepository) LinkProvider(ctx context.Context, id int64, provider, providerID string) error {
	query := `UPDATE users SET auth_provider = $2, provider_id = $3 WHERE id = $1`
	return r.exec(ctx, query, id, provider, providerID)
}

func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	query := `UPDATE users SET password_hash = $2 WHERE id = $1`
	return r.exec(ctx, query, id, hash)
}

func (r *PostgresRepository) SetEmailVerified(ctx context.Context, id int64) error {
	query := `UPDATE users SET email_verified = TRUE WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) TouchLastSeen(ctx context.Context, id int64) error {
	query := `UPDATE users SET last_seen_at = now() WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	var email, pwHash, prov, provID sql.NullString
	var role string

	err := row.Scan(&u.ID, &u.UUID, &email, &pwHash, &u.DisplayName, &role,
		&prov, &provID, &u.EmailVerified, &u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	u.Email = email.String
	u.PasswordHash = pwHash.String
	u.AuthProvider = prov.String
	u.ProviderID = provID.String
	u.Role = models.Role(role)
	return &u, nil
}

// nullable maps the model's empty string to SQL NULL so partial identities
// (no email, no password, no provider) stay NULL in the schema.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
