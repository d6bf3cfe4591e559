// Package providertokens persists provider credential records keyed by
// provider user id. Implementations exist for memory, PostgreSQL, SQLite and
// Redis, plus a decorator sealing the tokens at rest.
package providertokens

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository is the keyed store contract for ProviderToken records.
type Repository interface {
	// Get returns the record for providerUserID or common.ErrorNotFound.
	Get(ctx context.Context, providerUserID string) (*models.ProviderToken, error)

	// Upsert inserts or fully replaces the record keyed by its ProviderUserID.
	Upsert(ctx context.Context, token *models.ProviderToken) error
}
