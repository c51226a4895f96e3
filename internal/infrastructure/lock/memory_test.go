package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"sorted", []string{"b", "a", "c"}, []string{"a", "b", "c"}},
		{"deduped", []string{"b", "a", "b", "a"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.in))
		})
	}
}

func TestMemoryKeyLocker_SerializesSameKey(t *testing.T) {
	l := NewMemoryKeyLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "stock:product:flour@W1")
			require.NoError(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, l.Held())
}

func TestMemoryKeyLocker_DisjointKeysDoNotBlock(t *testing.T) {
	l := NewMemoryKeyLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
}

func TestMemoryKeyLocker_OppositeOrderNoDeadlock(t *testing.T) {
	l := NewMemoryKeyLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "x", "y")
			require.NoError(t, err)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "y", "x")
			require.NoError(t, err)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.Held())
}

func TestMemoryKeyLocker_ContextCancelled(t *testing.T) {
	l := NewMemoryKeyLocker()

	unlock, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a", "b")
	assert.ErrorIs(t, err, shared.ErrLockNotObtained)

	// "a" was released when "b" could not be obtained
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlockA()

	unlock()
	assert.Equal(t, 0, l.Held())
}

func TestMemoryKeyLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewMemoryKeyLocker()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock2, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock2()
}

func TestNewKeyLocker_Disabled(t *testing.T) {
	locker, closeFn, err := NewKeyLocker(config.RedisConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryKeyLocker{}, locker)
	assert.NoError(t, closeFn())
}
