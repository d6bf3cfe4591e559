package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertExclusive runs n concurrent critical sections on one key and fails if
// any two overlap.
func assertExclusive(t *testing.T, l Locker, key string, n int) {
	t.Helper()

	var (
		inside  int32
		overlap int32
		total   int32
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) != 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&total, 1)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlap), "critical sections overlapped")
	assert.EqualValues(t, n, atomic.LoadInt32(&total))
}

func TestLocal_SameKeyIsExclusive(t *testing.T) {
	l := NewLocal()
	assertExclusive(t, l, "u1", 20)
	assert.Zero(t, l.size(), "entries are dropped once unused")
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	close(release)
}

func TestLocal_ContextCancelledWhileWaiting(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := l.WithLock(ctx, "a", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(release)
	<-done
	assert.Zero(t, l.size())
}

func TestLocal_PropagatesError(t *testing.T) {
	l := NewLocal()
	boom := errors.New("boom")
	err := l.WithLock(context.Background(), "a", func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	// the key is usable again
	require.NoError(t, l.WithLock(context.Background(), "a", func(ctx context.Context) error { return nil }))
}
