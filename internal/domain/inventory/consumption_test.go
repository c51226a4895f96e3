package inventory

import (
	"context"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumptionEngine_Consume(t *testing.T) {
	ctx := context.Background()
	key := NewStockKey(flour, mainWarehouse)

	t.Run("drains the oldest batch first", func(t *testing.T) {
		store := NewBatchStore()
		gr1 := receipt(t, day(1), mainWarehouse, flour, "100", "10")
		gr2 := receipt(t, day(2), mainWarehouse, flour, "50", "12")
		apply(t, store, gr2, nil)
		apply(t, store, gr1, nil)

		tx := store.Begin()
		c, err := newTestEngine().Consume(ctx, tx, key, dec("120"), day(3))
		require.NoError(t, err)
		tx.Commit()

		require.Len(t, c.Portions, 2)
		assert.Equal(t, BatchIDFor(gr1.ID, 0), c.Portions[0].BatchID)
		assert.True(t, c.Portions[0].Quantity.Equal(dec("100")))
		assert.Equal(t, BatchIDFor(gr2.ID, 0), c.Portions[1].BatchID)
		assert.True(t, c.Portions[1].Quantity.Equal(dec("20")))
		assert.True(t, c.TotalCost.Equal(dec("1240")))
		assert.Equal(t, "10.3333", c.UnitCost.StringFixed(4))

		_, ok := store.FindBatch(BatchIDFor(gr1.ID, 0))
		assert.False(t, ok, "drained batch is removed")
		b2, ok := store.FindBatch(BatchIDFor(gr2.ID, 0))
		require.True(t, ok)
		assert.True(t, b2.Quantity.Equal(dec("30")))
		assert.True(t, store.OnHand(key).Equal(dec("30")))
	})

	t.Run("same receipt date keeps insertion order", func(t *testing.T) {
		store := NewBatchStore()
		first := receipt(t, day(1), mainWarehouse, flour, "10", "1")
		second := receipt(t, day(1), mainWarehouse, flour, "10", "2")
		apply(t, store, first, nil)
		apply(t, store, second, nil)

		tx := store.Begin()
		c, err := newTestEngine().Consume(ctx, tx, key, dec("5"), day(2))
		require.NoError(t, err)

		require.Len(t, c.Portions, 1)
		assert.Equal(t, BatchIDFor(first.ID, 0), c.Portions[0].BatchID)
		assert.True(t, c.UnitCost.Equal(decimal.NewFromInt(1)))
	})

	t.Run("insufficient stock leaves the store untouched", func(t *testing.T) {
		store := NewBatchStore()
		apply(t, store, receipt(t, day(1), mainWarehouse, flour, "10", "1"), nil)
		before := store.Clone()

		tx := store.Begin()
		_, err := newTestEngine().Consume(ctx, tx, key, dec("10.5"), day(2))
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.True(t, tx.OnHand(key).Equal(dec("10")))
		assert.Empty(t, tx.TouchedKeys())
		assert.True(t, store.Equal(before))
	})

	t.Run("non-positive quantity is rejected", func(t *testing.T) {
		tx := NewBatchStore().Begin()
		_, err := newTestEngine().Consume(ctx, tx, key, decimal.Zero, day(1))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("residue below epsilon is pruned", func(t *testing.T) {
		store := NewBatchStore()
		apply(t, store, receipt(t, day(1), mainWarehouse, flour, "10.0005", "1"), nil)

		tx := store.Begin()
		_, err := newTestEngine().Consume(ctx, tx, key, dec("10"), day(2))
		require.NoError(t, err)
		tx.Commit()

		assert.Empty(t, store.Batches(key))
		assert.True(t, store.OnHand(key).IsZero())
	})
}

func TestConsumptionEngine_AverageCost(t *testing.T) {
	ctx := context.Background()
	key := NewStockKey(flour, mainWarehouse)
	engine := newTestEngine()

	t.Run("empty key has no average", func(t *testing.T) {
		_, ok, err := engine.AverageCost(ctx, NewBatchStore().Begin(), key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("weighted by quantity", func(t *testing.T) {
		store := NewBatchStore()
		apply(t, store, receipt(t, day(1), mainWarehouse, flour, "30", "10"), nil)
		apply(t, store, receipt(t, day(2), mainWarehouse, flour, "10", "14"), nil)

		avg, ok, err := engine.AverageCost(ctx, store.Begin(), key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, avg.Equal(dec("11")))
	})
}
