package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// ConsumedPortion is the part of one batch taken by a consumption
type ConsumedPortion struct {
	BatchID     string          `json:"batch_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ReceiptDate time.Time       `json:"receipt_date"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

// Consumption is the result of drawing a quantity out of one stock key
type Consumption struct {
	Key       StockKey
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
	Portions  []ConsumedPortion
}

// ConsumptionEngine draws stock out of a StockTx using the batch selection
// and costing strategies it was built with.
type ConsumptionEngine struct {
	batches strategy.BatchManagementStrategy
	costs   strategy.CostCalculationStrategy
}

// NewConsumptionEngine creates a consumption engine
func NewConsumptionEngine(batches strategy.BatchManagementStrategy, costs strategy.CostCalculationStrategy) *ConsumptionEngine {
	return &ConsumptionEngine{batches: batches, costs: costs}
}

// Consume removes qty from key, oldest batches first. Either the whole
// quantity is taken or nothing changes and ErrInsufficientStock is returned.
func (e *ConsumptionEngine) Consume(ctx context.Context, tx *StockTx, key StockKey, qty decimal.Decimal, date time.Time) (*Consumption, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: consumed quantity must be positive, got %s", shared.ErrInvalidInput, qty)
	}

	current := tx.Batches(key)
	selection, err := e.batches.SelectBatches(ctx, strategy.BatchSelectionContext{
		ItemKey:     key.Item.String(),
		WarehouseID: key.WarehouseID,
		Quantity:    qty,
		Date:        date,
	}, toStrategyBatches(current))
	if err != nil {
		return nil, err
	}
	if !selection.IsFulfilled() {
		return nil, fmt.Errorf("%w: %s requested %s, available %s",
			shared.ErrInsufficientStock, key, qty, selection.TotalQty)
	}

	entries := make([]strategy.StockEntry, 0, len(selection.Selections))
	portions := make([]ConsumedPortion, 0, len(selection.Selections))
	taken := make(map[string]decimal.Decimal, len(selection.Selections))
	for _, sel := range selection.Selections {
		entries = append(entries, strategy.StockEntry{
			ID:        sel.BatchID,
			Quantity:  sel.Quantity,
			UnitCost:  sel.UnitCost,
			EntryDate: sel.ReceivedDate,
		})
		portions = append(portions, ConsumedPortion{
			BatchID:     sel.BatchID,
			Quantity:    sel.Quantity,
			UnitCost:    sel.UnitCost,
			ReceiptDate: sel.ReceivedDate,
			ExpiryDate:  sel.ExpiryDate,
		})
		taken[sel.BatchID] = sel.Quantity
	}

	cost, err := e.costs.CalculateCost(ctx, strategy.CostContext{
		ItemKey:     key.Item.String(),
		WarehouseID: key.WarehouseID,
		Quantity:    qty,
		Date:        date,
	}, entries)
	if err != nil {
		return nil, err
	}

	remaining := make([]StockBatch, 0, len(current))
	for _, b := range current {
		if q, ok := taken[b.ID]; ok {
			b.Quantity = b.Quantity.Sub(q)
		}
		remaining = append(remaining, b)
	}
	tx.SetBatches(key, remaining)

	return &Consumption{
		Key:       key,
		Quantity:  qty,
		UnitCost:  cost.UnitCost,
		TotalCost: cost.TotalCost,
		Portions:  portions,
	}, nil
}

// AverageCost returns the quantity-weighted unit cost of the batches under
// key. The second result is false when the key holds no stock.
func (e *ConsumptionEngine) AverageCost(ctx context.Context, tx *StockTx, key StockKey) (decimal.Decimal, bool, error) {
	batches := tx.Batches(key)
	if len(batches) == 0 {
		return decimal.Zero, false, nil
	}
	entries := make([]strategy.StockEntry, 0, len(batches))
	for _, b := range batches {
		entries = append(entries, strategy.StockEntry{
			ID:        b.ID,
			Quantity:  b.Quantity,
			UnitCost:  b.UnitCost,
			EntryDate: b.ReceiptDate,
			Sequence:  b.Sequence,
		})
	}
	avg, err := e.costs.CalculateAverageCost(ctx, entries)
	if err != nil {
		return decimal.Zero, false, err
	}
	return avg, true, nil
}

func toStrategyBatches(batches []StockBatch) []strategy.Batch {
	out := make([]strategy.Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, strategy.Batch{
			ID:           b.ID,
			ItemKey:      b.Item.String(),
			WarehouseID:  b.WarehouseID,
			AvailableQty: b.Quantity,
			UnitCost:     b.UnitCost,
			ReceivedDate: b.ReceiptDate,
			ExpiryDate:   b.ExpiryDate,
			Sequence:     b.Sequence,
		})
	}
	return out
}
