package providertokens

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Sealer encrypts values at rest. *cryptox.Sealer satisfies it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SealedRepository wraps another Repository and keeps AccessToken and
// RefreshToken encrypted in it. Keys and expiry stay in clear text.
type SealedRepository struct {
	next   Repository
	sealer Sealer
}

func NewSealedRepository(next Repository, sealer Sealer) *SealedRepository {
	return &SealedRepository{next: next, sealer: sealer}
}

func (r *SealedRepository) Get(ctx context.Context, providerUserID string) (*models.ProviderToken, error) {
	t, err := r.next.Get(ctx, providerUserID)
	if err != nil {
		return nil, err
	}

	t.AccessToken, err = r.sealer.Open(t.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if t.RefreshToken != nil {
		rt, err := r.sealer.Open(*t.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("open refresh token: %w", err)
		}
		t.RefreshToken = &rt
	}
	return t, nil
}

func (r *SealedRepository) Upsert(ctx context.Context, token *models.ProviderToken) error {
	c := token.Clone()

	var err error
	c.AccessToken, err = r.sealer.Seal(token.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if token.RefreshToken != nil {
		rt, err := r.sealer.Seal(*token.RefreshToken)
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		c.RefreshToken = &rt
	}
	return r.next.Upsert(ctx, c)
}
