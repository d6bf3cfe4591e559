package providertokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// RedisKeyPrefix namespaces record keys.
const RedisKeyPrefix = "tokenkeeper:provider_token:"

// RedisRepository stores each record as a JSON document without a TTL.
// Records are never deleted by the service.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client, prefix: RedisKeyPrefix}
}

func (r *RedisRepository) key(providerUserID string) string {
	return r.prefix + providerUserID
}

func (r *RedisRepository) Get(ctx context.Context, providerUserID string) (*models.ProviderToken, error) {
	data, err := r.client.Get(ctx, r.key(providerUserID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var t models.ProviderToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to deserialize provider token: %w", err)
	}
	return &t, nil
}

func (r *RedisRepository) Upsert(ctx context.Context, token *models.ProviderToken) error {
	c := token.Clone()
	c.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize provider token: %w", err)
	}

	if err := r.client.Set(ctx, r.key(c.ProviderUserID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
