package locks

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
)

// Postgres is a Locker built on transaction-scoped advisory locks. The lock
// is released by the commit or rollback that ends the transaction.
type Postgres struct {
	db dbx.TxBeginner
}

// NewPostgres returns a Locker taking advisory locks through db.
func NewPostgres(db dbx.TxBeginner) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, KeyPrefix+key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
		return fn(ctx)
	})
}
