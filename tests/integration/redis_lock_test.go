package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisKeyLocker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	host, port := startRedis(t)
	locker, closeLock, err := lock.NewKeyLocker(config.RedisConfig{
		Enabled:      true,
		Host:         host,
		Port:         port,
		LockTTL:      10 * time.Second,
		LockRetryGap: 20 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeLock() })
	require.IsType(t, &lock.RedisKeyLocker{}, locker)

	ctx := context.Background()

	t.Run("held key blocks until released", func(t *testing.T) {
		release, err := locker.Lock(ctx, "flour@W1", "sugar@W1")
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(short, "sugar@W1")
		assert.ErrorIs(t, err, shared.ErrLockNotObtained)

		release()
		again, err := locker.Lock(ctx, "sugar@W1")
		require.NoError(t, err)
		again()
	})

	t.Run("confirmations serialize through redis", func(t *testing.T) {
		tdb := NewTestDB(t)
		procs := []*process{start(t, tdb, locker, false), start(t, tdb, locker, false)}

		gr := inventory.NewGoodsReceipt(day(1), "mill", "W1")
		require.NoError(t, gr.AddLine(flour, dec("5"), dec("1"), nil))
		procs[0].confirm(t, gr)

		drafts := make([]*inventory.WriteOff, 8)
		for i := range drafts {
			drafts[i] = inventory.NewWriteOff(day(2), "W1", "portion")
			require.NoError(t, drafts[i].AddLine(flour, dec("1")))
			require.NoError(t, procs[i%2].ledger.CreateDraft(ctx, drafts[i]))
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok, fail int
		)
		for i, d := range drafts {
			wg.Add(1)
			go func(p *process, d *inventory.WriteOff) {
				defer wg.Done()
				err := p.ledger.Confirm(ctx, d.ID)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if assert.ErrorIs(t, err, shared.ErrInsufficientStock) {
					fail++
				}
			}(procs[(i+1)%2], d)
		}
		wg.Wait()

		assert.Equal(t, 5, ok)
		assert.Equal(t, 3, fail)
		for _, p := range procs {
			require.NoError(t, p.ledger.Refresh(ctx))
			assert.True(t, p.ledger.OnHandQuantity(flour, "W1").IsZero())
		}
	})
}
