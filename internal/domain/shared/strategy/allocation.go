package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OpenDebt is a document with an outstanding amount that a payment or
// credit can settle
type OpenDebt struct {
	ID          string
	Number      string
	Date        time.Time
	Outstanding decimal.Decimal
}

// Allocation is the part of a payment applied to one debt
type Allocation struct {
	DebtID            string
	Number            string
	Amount            decimal.Decimal
	OutstandingBefore decimal.Decimal
	OutstandingAfter  decimal.Decimal
}

// AllocationContext describes the payment being spread
type AllocationContext struct {
	CounterpartyID string
	Amount         decimal.Decimal
	Date           time.Time
}

// AllocationResult is the outcome of spreading one payment
type AllocationResult struct {
	Allocations []Allocation
	Allocated   decimal.Decimal
	// Remaining is what no open debt absorbed; it becomes an advance
	Remaining decimal.Decimal
}

// PaymentAllocationStrategy decides which open debts a payment settles
type PaymentAllocationStrategy interface {
	Strategy
	Allocate(ctx context.Context, allocCtx AllocationContext, debts []OpenDebt) (AllocationResult, error)
}
