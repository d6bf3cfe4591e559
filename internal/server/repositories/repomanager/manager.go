package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/providertokens"
)

// RepositoryManager vends repositories for one SQL dialect and migrates its schema.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	ProviderTokens(db dbx.DBTX) providertokens.Repository
}
