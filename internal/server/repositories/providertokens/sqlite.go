package providertokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// SQLiteRepository stores records in a local SQLite file. Timestamps are kept
// as unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, providerUserID string) (*models.ProviderToken, error) {
	query := `select provider_user_id, access_token, access_token_expires_at, refresh_token, updated_at
		from provider_tokens where provider_user_id = ?`

	var (
		t         models.ProviderToken
		expires   sql.NullInt64
		refresh   sql.NullString
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, providerUserID).
		Scan(&t.ProviderUserID, &t.AccessToken, &expires, &refresh, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if expires.Valid {
		exp := time.UnixMilli(expires.Int64).UTC()
		t.AccessTokenExpiresAt = &exp
	}
	if refresh.Valid {
		rt := refresh.String
		t.RefreshToken = &rt
	}
	return &t, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, token *models.ProviderToken) error {
	query := `insert into provider_tokens (provider_user_id, access_token, access_token_expires_at, refresh_token, updated_at)
			values (?, ?, ?, ?, ?)
			ON CONFLICT(provider_user_id) DO UPDATE SET access_token = excluded.access_token,
				access_token_expires_at = excluded.access_token_expires_at,
				refresh_token = excluded.refresh_token,
				updated_at = excluded.updated_at`

	var expires sql.NullInt64
	if token.AccessTokenExpiresAt != nil {
		expires = sql.NullInt64{Int64: token.AccessTokenExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		token.ProviderUserID,
		token.AccessToken,
		expires,
		nullString(token.RefreshToken),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}
