// Package repomanager wires repository implementations to database handles.
// Services ask the manager for a repository bound to either the pool or a
// transaction, which is how rotation keeps its consume-and-create atomic.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/voyagerhq/auth-service/internal/dbx"
	"github.com/voyagerhq/auth-service/internal/server/repositories/refreshtokens"
	"github.com/voyagerhq/auth-service/internal/server/repositories/users"
	"github.com/voyagerhq/auth-service/internal/server/repositories/verifications"
)

// RepositoryManager hands out repositories bound to a DBTX and owns schema
// migration.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Verifications(db dbx.DBTX) verifications.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
