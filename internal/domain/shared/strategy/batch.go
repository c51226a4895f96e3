package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Batch is the strategy-level view of a stock batch. Sequence breaks ties
// between batches received on the same date, lower first.
type Batch struct {
	ID           string
	ItemKey      string
	WarehouseID  string
	AvailableQty decimal.Decimal
	UnitCost     decimal.Decimal
	ReceivedDate time.Time
	ExpiryDate   *time.Time
	Sequence     int64
}

// BatchSelection represents a portion of a batch chosen for consumption
type BatchSelection struct {
	BatchID      string
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	ReceivedDate time.Time
	ExpiryDate   *time.Time
	// Exhausted is true when the whole available quantity was taken
	Exhausted bool
}

// BatchSelectionContext provides context for batch selection
type BatchSelectionContext struct {
	ItemKey     string
	WarehouseID string
	Quantity    decimal.Decimal
	Date        time.Time
}

// BatchSelectionResult contains the result of batch selection
type BatchSelectionResult struct {
	Selections   []BatchSelection
	TotalQty     decimal.Decimal
	ShortfallQty decimal.Decimal
}

// IsFulfilled reports whether the whole requested quantity was selected
func (r BatchSelectionResult) IsFulfilled() bool {
	return !r.ShortfallQty.IsPositive()
}

// BatchManagementStrategy defines the interface for batch selection
type BatchManagementStrategy interface {
	Strategy
	// SelectBatches selects batches for consumption based on strategy rules.
	// It never mutates the input slice.
	SelectBatches(ctx context.Context, selCtx BatchSelectionContext, batches []Batch) (BatchSelectionResult, error)
	// ConsidersExpiry returns true if the strategy considers expiry dates
	ConsidersExpiry() bool
}
