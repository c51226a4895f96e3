package finance

import (
	"context"
)

// SettlementRepository persists applied settlements with their allocations.
// Debt documents are not stored: they are derived from confirmed ledger
// documents on every load.
type SettlementRepository interface {
	// Save stores a settlement; saving the same id twice is a no-op
	Save(ctx context.Context, s *Settlement) error

	// FindAll lists settlements in the order they were applied
	FindAll(ctx context.Context) ([]Settlement, error)

	// FindByCounterparty lists settlements of one counterparty in application order
	FindByCounterparty(ctx context.Context, counterpartyID string) ([]Settlement, error)
}
