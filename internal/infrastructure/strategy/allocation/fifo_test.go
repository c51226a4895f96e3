package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOAllocationStrategy_Allocate(t *testing.T) {
	s := NewFIFOAllocationStrategy()
	ctx := context.Background()
	jan := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	debts := []strategy.OpenDebt{
		{ID: "gr2", Number: "GR-000002", Date: jan(10), Outstanding: decimal.NewFromInt(500)},
		{ID: "gr1", Number: "GR-000001", Date: jan(1), Outstanding: decimal.NewFromInt(1000)},
		{ID: "paid", Number: "GR-000000", Date: jan(1), Outstanding: decimal.Zero},
	}

	t.Run("pays oldest document first", func(t *testing.T) {
		result, err := s.Allocate(ctx, strategy.AllocationContext{Amount: decimal.NewFromInt(1200)}, debts)
		require.NoError(t, err)

		require.Len(t, result.Allocations, 2)
		assert.Equal(t, "gr1", result.Allocations[0].DebtID)
		assert.True(t, result.Allocations[0].Amount.Equal(decimal.NewFromInt(1000)))
		assert.True(t, result.Allocations[0].OutstandingAfter.IsZero())
		assert.Equal(t, "gr2", result.Allocations[1].DebtID)
		assert.True(t, result.Allocations[1].Amount.Equal(decimal.NewFromInt(200)))
		assert.True(t, result.Allocations[1].OutstandingAfter.Equal(decimal.NewFromInt(300)))
		assert.True(t, result.Remaining.IsZero())
	})

	t.Run("overpayment leaves a remainder", func(t *testing.T) {
		result, err := s.Allocate(ctx, strategy.AllocationContext{Amount: decimal.NewFromInt(1600)}, debts)
		require.NoError(t, err)

		assert.True(t, result.Allocated.Equal(decimal.NewFromInt(1500)))
		assert.True(t, result.Remaining.Equal(decimal.NewFromInt(100)))
	})

	t.Run("same date keeps input order", func(t *testing.T) {
		sameDay := []strategy.OpenDebt{
			{ID: "first", Date: jan(3), Outstanding: decimal.NewFromInt(10)},
			{ID: "second", Date: jan(3), Outstanding: decimal.NewFromInt(10)},
		}
		result, err := s.Allocate(ctx, strategy.AllocationContext{Amount: decimal.NewFromInt(15)}, sameDay)
		require.NoError(t, err)

		require.Len(t, result.Allocations, 2)
		assert.Equal(t, "first", result.Allocations[0].DebtID)
		assert.True(t, result.Allocations[1].Amount.Equal(decimal.NewFromInt(5)))
	})

	t.Run("negative payment is rejected", func(t *testing.T) {
		_, err := s.Allocate(ctx, strategy.AllocationContext{Amount: decimal.NewFromInt(-1)}, debts)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
