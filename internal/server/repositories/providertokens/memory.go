package providertokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// MemoryRepository keeps records in a map. It stores and returns copies so
// callers can never mutate stored state.
type MemoryRepository struct {
	mu     sync.RWMutex
	tokens map[string]*models.ProviderToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]*models.ProviderToken)}
}

func (r *MemoryRepository) Get(_ context.Context, providerUserID string) (*models.ProviderToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[providerUserID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, token *models.ProviderToken) error {
	if token == nil || token.ProviderUserID == "" {
		return fmt.Errorf("upsert provider token: empty provider user id")
	}

	c := token.Clone()
	c.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.tokens[c.ProviderUserID] = c
	r.mu.Unlock()
	return nil
}
