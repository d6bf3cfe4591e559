package locks

import (
	"context"
	"sync"
)

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker: one mutex per key, dropped once no caller
// holds or waits for it.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.ref(key)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return ctx.Err()
	}

	defer func() {
		<-e.ch
		l.unref(key, e)
	}()

	return fn(ctx)
}

func (l *Local) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports how many keys are tracked.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
