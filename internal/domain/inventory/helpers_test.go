package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/strategy/batch"
	"github.com/erp/stockledger/internal/infrastructure/strategy/cost"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const mainWarehouse = "W1"

var (
	flour = ProductRef("flour")
	sugar = ProductRef("sugar")
	bread = DishRef("bread")
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine() *ConsumptionEngine {
	return NewConsumptionEngine(batch.NewFIFOBatchStrategy(), cost.NewFIFOCostStrategy())
}

type recipeMap map[string]*Recipe

func (m recipeMap) Recipe(dishID string) (*Recipe, error) {
	r, ok := m[dishID]
	if !ok {
		return nil, fmt.Errorf("%w: recipe for %s", shared.ErrNotFound, dishID)
	}
	return r, nil
}

// apply runs doc against store in one transaction and commits it
func apply(t *testing.T, store *BatchStore, doc Document, recipes RecipeBook) *Effect {
	t.Helper()
	tx := store.Begin()
	eff, err := doc.ApplyStock(context.Background(), tx, EffectEnv{Engine: newTestEngine(), Recipes: recipes})
	require.NoError(t, err)
	tx.Commit()
	return eff
}

// applyErr runs doc against store and discards the transaction
func applyErr(store *BatchStore, doc Document, recipes RecipeBook) error {
	tx := store.Begin()
	_, err := doc.ApplyStock(context.Background(), tx, EffectEnv{Engine: newTestEngine(), Recipes: recipes})
	if err == nil {
		tx.Commit()
	}
	return err
}

func receipt(t *testing.T, date time.Time, warehouseID string, item ItemRef, qty, price string) *GoodsReceipt {
	t.Helper()
	gr := NewGoodsReceipt(date, "supplier-1", warehouseID)
	require.NoError(t, gr.AddLine(item, dec(qty), dec(price), nil))
	return gr
}

func confirmed(doc Document, seq int64) Document {
	_ = doc.Head().MarkConfirmed(seq, doc.Head().Date)
	return doc
}
