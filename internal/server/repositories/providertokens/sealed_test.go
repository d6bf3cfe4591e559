package providertokens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

func newSealer(t *testing.T) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte("test-passphrase"))
	require.NoError(t, err)
	return s
}

func TestSealedRepository_Contract(t *testing.T) {
	runRepositoryContract(t, NewSealedRepository(NewMemoryRepository(), newSealer(t)))
}

func TestSealedRepository_StoresCiphertext(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRepository()
	repo := NewSealedRepository(inner, newSealer(t))

	require.NoError(t, repo.Upsert(ctx, &models.ProviderToken{ProviderUserID: "u1", AccessToken: "a1", RefreshToken: strPtr("r1")}))

	raw, err := inner.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, "a1", raw.AccessToken)
	assert.NotEqual(t, "r1", *raw.RefreshToken)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "r1", *got.RefreshToken)
}

func TestSealedRepository_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRepository()
	require.NoError(t, NewSealedRepository(inner, newSealer(t)).Upsert(ctx, &models.ProviderToken{ProviderUserID: "u1", AccessToken: "a1"}))

	other, err := cryptox.NewSealer([]byte("another"))
	require.NoError(t, err)

	_, err = NewSealedRepository(inner, other).Get(ctx, "u1")
	require.ErrorIs(t, err, cryptox.ErrOpen)
}
