package allocation

import (
	"context"
	"fmt"
	"sort"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// FIFOAllocationStrategy settles the oldest debts first
type FIFOAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOAllocationStrategy creates a new FIFO allocation strategy
func NewFIFOAllocationStrategy() *FIFOAllocationStrategy {
	return &FIFOAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo",
			strategy.StrategyTypeAllocation,
			"Settle the oldest open documents first",
		),
	}
}

// Allocate spreads allocCtx.Amount over debts by date. Debts of the same
// day keep their input order.
func (s *FIFOAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	debts []strategy.OpenDebt,
) (strategy.AllocationResult, error) {
	if allocCtx.Amount.IsNegative() {
		return strategy.AllocationResult{}, fmt.Errorf("%w: payment amount %s is negative", shared.ErrInvalidInput, allocCtx.Amount)
	}

	sorted := make([]strategy.OpenDebt, len(debts))
	copy(sorted, debts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	result := strategy.AllocationResult{
		Allocations: make([]strategy.Allocation, 0),
		Allocated:   decimal.Zero,
		Remaining:   allocCtx.Amount,
	}
	for _, d := range sorted {
		if !result.Remaining.IsPositive() {
			break
		}
		if !d.Outstanding.IsPositive() {
			continue
		}

		amount := decimal.Min(result.Remaining, d.Outstanding)
		result.Allocations = append(result.Allocations, strategy.Allocation{
			DebtID:            d.ID,
			Number:            d.Number,
			Amount:            amount,
			OutstandingBefore: d.Outstanding,
			OutstandingAfter:  d.Outstanding.Sub(amount),
		})
		result.Remaining = result.Remaining.Sub(amount)
		result.Allocated = result.Allocated.Add(amount)
	}
	return result, nil
}
