package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// DefaultRedisExpiry bounds how long a crashed holder can keep a key locked.
const DefaultRedisExpiry = 30 * time.Second

// Redis is a Locker backed by a redsync (Redlock) mutex, so that several
// service instances sharing one Redis never refresh the same key twice.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedis returns a Locker on client. A non-positive expiry means DefaultRedisExpiry.
func NewRedis(client goredislib.UniversalClient, expiry time.Duration) *Redis {
	if expiry <= 0 {
		expiry = DefaultRedisExpiry
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := r.rs.NewMutex(KeyPrefix+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(1<<16),
		redsync.WithRetryDelay(25*time.Millisecond),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to acquire distributed lock %s: %w", key, err)
	}

	// An unlock failure is not reported: the expiry frees the key regardless.
	defer func() { _, _ = mutex.UnlockContext(context.WithoutCancel(ctx)) }()

	return fn(ctx)
}
