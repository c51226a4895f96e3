package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CostMethod represents the inventory costing method
type CostMethod string

const (
	CostMethodFIFO CostMethod = "fifo"
)

// String returns the string representation of the cost method
func (m CostMethod) String() string {
	return string(m)
}

// StockEntry represents a costed quantity, usually one consumed batch portion
type StockEntry struct {
	ID        string
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	EntryDate time.Time
	Sequence  int64
}

// CostContext provides context for cost calculation
type CostContext struct {
	ItemKey     string
	WarehouseID string
	Quantity    decimal.Decimal
	Date        time.Time
}

// CostResult contains the result of cost calculation
type CostResult struct {
	UnitCost     decimal.Decimal
	TotalCost    decimal.Decimal
	Method       CostMethod
	EntriesUsed  []StockEntry
	RemainingQty decimal.Decimal
}

// CostCalculationStrategy defines the interface for inventory cost calculation
type CostCalculationStrategy interface {
	Strategy
	// Method returns the costing method used by this strategy
	Method() CostMethod
	// CalculateCost calculates the cost for a given quantity drawn from entries
	CalculateCost(ctx context.Context, costCtx CostContext, entries []StockEntry) (CostResult, error)
	// CalculateAverageCost calculates the quantity-weighted average cost of entries
	CalculateAverageCost(ctx context.Context, entries []StockEntry) (decimal.Decimal, error)
}
