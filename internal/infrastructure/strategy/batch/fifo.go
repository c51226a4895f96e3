package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// FIFOBatchStrategy implements First In First Out batch selection.
// Batches are ordered by receipt date, ties broken by insertion sequence.
// Expiry dates are carried through but never influence the order.
type FIFOBatchStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOBatchStrategy creates a new FIFO batch strategy
func NewFIFOBatchStrategy() *FIFOBatchStrategy {
	return &FIFOBatchStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo",
			strategy.StrategyTypeBatch,
			"First In First Out - selects batches by receipt date (oldest first)",
		),
	}
}

// SelectBatches selects batches in FIFO order by receipt date
func (s *FIFOBatchStrategy) SelectBatches(
	ctx context.Context,
	selCtx strategy.BatchSelectionContext,
	batches []strategy.Batch,
) (strategy.BatchSelectionResult, error) {
	if selCtx.Quantity.IsNegative() {
		return strategy.BatchSelectionResult{}, fmt.Errorf("%w: requested quantity %s is negative", shared.ErrInvalidInput, selCtx.Quantity)
	}

	filtered := filterAvailableBatches(batches, selCtx.ItemKey, selCtx.WarehouseID)
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].ReceivedDate.Equal(filtered[j].ReceivedDate) {
			return filtered[i].ReceivedDate.Before(filtered[j].ReceivedDate)
		}
		return filtered[i].Sequence < filtered[j].Sequence
	})

	return selectFromBatches(filtered, selCtx.Quantity), nil
}

// ConsidersExpiry returns false as FIFO doesn't consider expiry dates
func (s *FIFOBatchStrategy) ConsidersExpiry() bool {
	return false
}

// filterAvailableBatches keeps batches of the item and warehouse with positive quantity.
// An empty item key or warehouse matches everything.
func filterAvailableBatches(batches []strategy.Batch, itemKey, warehouseID string) []strategy.Batch {
	filtered := make([]strategy.Batch, 0, len(batches))
	for _, b := range batches {
		if itemKey != "" && b.ItemKey != itemKey {
			continue
		}
		if warehouseID != "" && b.WarehouseID != warehouseID {
			continue
		}
		if b.AvailableQty.IsPositive() {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

// selectFromBatches drains sorted batches until quantity is covered
func selectFromBatches(batches []strategy.Batch, quantity decimal.Decimal) strategy.BatchSelectionResult {
	remainingQty := quantity
	selections := make([]strategy.BatchSelection, 0)
	totalQty := decimal.Zero

	for _, batch := range batches {
		if !remainingQty.IsPositive() {
			break
		}

		selectedQty := decimal.Min(remainingQty, batch.AvailableQty)
		selections = append(selections, strategy.BatchSelection{
			BatchID:      batch.ID,
			Quantity:     selectedQty,
			UnitCost:     batch.UnitCost,
			ReceivedDate: batch.ReceivedDate,
			ExpiryDate:   batch.ExpiryDate,
			Exhausted:    selectedQty.Equal(batch.AvailableQty),
		})

		remainingQty = remainingQty.Sub(selectedQty)
		totalQty = totalQty.Add(selectedQty)
	}

	return strategy.BatchSelectionResult{
		Selections:   selections,
		TotalQty:     totalQty,
		ShortfallQty: remainingQty,
	}
}
