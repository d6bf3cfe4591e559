// Package locks serialises work per key, either inside one process or across
// instances sharing Redis or PostgreSQL.
package locks

import "context"

// KeyPrefix namespaces lock names in shared backends.
const KeyPrefix = "tokenkeeper:lock:"

// Locker runs fn while holding the lock for key. Different keys never block
// each other. fn receives the caller's context.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
