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

// PostgresRepository stores records in the provider_tokens table over
// dbx.DBTX (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, providerUserID string) (*models.ProviderToken, error) {
	query := `
		SELECT provider_user_id, access_token, access_token_expires_at, refresh_token, updated_at
		FROM provider_tokens
		WHERE provider_user_id = $1
	`
	var (
		t       models.ProviderToken
		expires sql.NullTime
		refresh sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, providerUserID).
		Scan(&t.ProviderUserID, &t.AccessToken, &expires, &refresh, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if expires.Valid {
		exp := expires.Time
		t.AccessTokenExpiresAt = &exp
	}
	if refresh.Valid {
		rt := refresh.String
		t.RefreshToken = &rt
	}
	return &t, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, token *models.ProviderToken) error {
	query := `
		INSERT INTO provider_tokens (provider_user_id, access_token, access_token_expires_at, refresh_token, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			refresh_token = EXCLUDED.refresh_token,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ProviderUserID,
		token.AccessToken,
		nullTime(token.AccessTokenExpiresAt),
		nullString(token.RefreshToken),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
