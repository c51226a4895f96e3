// Package lock provides KeyLocker implementations for serializing stock
// mutations: an in-process keyed mutex and a Redis-backed distributed lock.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
)

// MemoryKeyLocker is an in-process keyed mutex. Waiting honours context
// cancellation. Safe for concurrent use.
type MemoryKeyLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// NewMemoryKeyLocker creates an in-process locker
func NewMemoryKeyLocker() *MemoryKeyLocker {
	return &MemoryKeyLocker{slots: make(map[string]*slot)}
}

// Lock implements shared.KeyLocker
func (l *MemoryKeyLocker) Lock(ctx context.Context, names ...string) (func(), error) {
	keys := normalize(names)
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, k := range keys {
		if err := l.acquire(ctx, k); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *MemoryKeyLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		s.waiters--
		if s.waiters == 0 {
			delete(l.slots, key)
		}
		l.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", shared.ErrLockNotObtained, key, ctx.Err())
	}
}

func (l *MemoryKeyLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	<-s.ch
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}

// Held returns the number of keys currently locked or waited on
func (l *MemoryKeyLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// normalize sorts and dedupes names so every caller locks in the same order
func normalize(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

var _ shared.KeyLocker = (*MemoryKeyLocker)(nil)
