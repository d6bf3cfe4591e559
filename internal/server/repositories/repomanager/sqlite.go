package repomanager

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/providertokens"
)

// SQLiteRepositoryManager vends SQLite-backed repositories for single-node
// deployments.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) ProviderTokens(db dbx.DBTX) providertokens.Repository {
	return providertokens.NewSQLiteRepository(db)
}

// RunMigrations applies the embedded sqlite/ migrations.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, migrations.SQLite, "sqlite", "sqlite3")
}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}
