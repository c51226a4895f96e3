package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OnHandQuantity returns the live quantity of item in a warehouse
func (s *LedgerService) OnHandQuantity(item inventory.ItemRef, warehouseID string) decimal.Decimal {
	return s.store.OnHand(inventory.NewStockKey(item, warehouseID))
}

// BatchesFor returns the live batches of item in a warehouse, oldest first
func (s *LedgerService) BatchesFor(item inventory.ItemRef, warehouseID string) []inventory.StockBatch {
	return s.store.Batches(inventory.NewStockKey(item, warehouseID))
}

// ProducibleQuantity returns how many units of dishID the warehouse's
// current stock can produce, rounded down
func (s *LedgerService) ProducibleQuantity(dishID, warehouseID string) (decimal.Decimal, error) {
	if err := s.master.ValidateWarehouse(warehouseID); err != nil {
		return decimal.Zero, err
	}
	recipe, err := s.master.Recipe(dishID)
	if err != nil {
		return decimal.Zero, err
	}
	return recipe.Producible(func(item inventory.ItemRef) decimal.Decimal {
		return s.store.OnHand(inventory.NewStockKey(item, warehouseID))
	}), nil
}

// StockAsOf rebuilds the batch store as it stood at the end of asOf. It
// replays a copy of the confirmed history and takes no confirmation locks.
func (s *LedgerService) StockAsOf(ctx context.Context, asOf time.Time) (*inventory.BatchStore, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "stock_as_of",
		telemetry.WithAttribute("as_of", asOf.Format(time.DateOnly)))
	defer span.End()

	history, err := s.docs.FindConfirmed(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	store, err := s.replayer.StockAsOf(ctx, history, endOfDay(asOf))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, "documents", len(history), "keys", len(store.Keys()))
	return store, nil
}

// Turnover reports the daily movements of item in a warehouse between from
// and to inclusive
func (s *LedgerService) Turnover(ctx context.Context, item inventory.ItemRef, warehouseID string, from, to time.Time) (*inventory.TurnoverReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "turnover",
		telemetry.WithAttribute("item", item.String()),
		telemetry.WithAttribute("warehouse_id", warehouseID))
	defer span.End()

	if err := s.master.ValidateItem(item); err != nil {
		return nil, err
	}
	if err := s.master.ValidateWarehouse(warehouseID); err != nil {
		return nil, err
	}
	history, err := s.docs.FindConfirmed(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report, err := s.replayer.Turnover(ctx, history, inventory.NewStockKey(item, warehouseID), from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return report, nil
}

// GetDocument returns a copy of a stored document
func (s *LedgerService) GetDocument(ctx context.Context, id uuid.UUID) (inventory.Document, error) {
	return s.docs.FindByID(ctx, id)
}

// FindDocument resolves a document by id or by number (e.g. GR-000007)
func (s *LedgerService) FindDocument(ctx context.Context, ref string) (inventory.Document, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.docs.FindByID(ctx, id)
	}
	for _, kind := range inventory.AllDocumentKinds() {
		if _, ok := kind.ParseNumber(ref); !ok {
			continue
		}
		docs, err := s.docs.FindAll(ctx, inventory.DocumentFilter{Kind: kind})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			if d.Head().Number == ref {
				return d, nil
			}
		}
		break
	}
	return nil, fmt.Errorf("%w: document %s", shared.ErrNotFound, ref)
}

// ListDocuments lists stored documents ordered by date then number
func (s *LedgerService) ListDocuments(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.Document, error) {
	return s.docs.FindAll(ctx, filter)
}

// endOfDay returns the last instant of t's calendar day
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
