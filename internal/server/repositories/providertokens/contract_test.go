package providertokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// runRepositoryContract exercises the behaviour every Repository must share.
func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	t.Run("missing record is not found", func(t *testing.T) {
		_, err := repo.Get(ctx, "nobody")
		require.True(t, errors.Is(err, common.ErrorNotFound), "got %v", err)
	})

	t.Run("insert then get", func(t *testing.T) {
		in := &models.ProviderToken{
			ProviderUserID:       "u1",
			AccessToken:          "a1",
			AccessTokenExpiresAt: timePtr(exp),
			RefreshToken:         strPtr("r1"),
		}
		require.NoError(t, repo.Upsert(ctx, in))

		got, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ProviderUserID)
		assert.Equal(t, "a1", got.AccessToken)
		require.NotNil(t, got.AccessTokenExpiresAt)
		assert.True(t, exp.Equal(*got.AccessTokenExpiresAt), "want %v got %v", exp, *got.AccessTokenExpiresAt)
		require.NotNil(t, got.RefreshToken)
		assert.Equal(t, "r1", *got.RefreshToken)
	})

	t.Run("upsert replaces the whole record", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &models.ProviderToken{ProviderUserID: "u1", AccessToken: "a2"}))

		got, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a2", got.AccessToken)
		assert.Nil(t, got.AccessTokenExpiresAt, "absent expiry means never expires")
		assert.Nil(t, got.RefreshToken)
	})

	t.Run("keys are independent", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &models.ProviderToken{ProviderUserID: "u2", AccessToken: "b1"}))

		got1, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		got2, err := repo.Get(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "a2", got1.AccessToken)
		assert.Equal(t, "b1", got2.AccessToken)
	})

	t.Run("long tokens survive", func(t *testing.T) {
		long := make([]byte, 2048)
		for i := range long {
			long[i] = 'x'
		}
		require.NoError(t, repo.Upsert(ctx, &models.ProviderToken{
			ProviderUserID: "long",
			AccessToken:    string(long),
			RefreshToken:   strPtr(string(long)),
		}))
		got, err := repo.Get(ctx, "long")
		require.NoError(t, err)
		assert.Len(t, got.AccessToken, 2048)
		assert.Len(t, *got.RefreshToken, 2048)
	})
}
