package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PriceAdjustment overwrites the unit cost of one batch. Quantities and
// costs already realized by earlier documents are not touched.
type PriceAdjustment struct {
	DocumentHeader
	BatchID     string          `json:"batch_id"`
	NewUnitCost decimal.Decimal `json:"new_unit_cost"`
	// Recorded when applied
	OldUnitCost decimal.Decimal `json:"old_unit_cost"`
	Item        ItemRef         `json:"item"`
	WarehouseID string          `json:"warehouse_id"`
}

// NewPriceAdjustment creates a draft price adjustment
func NewPriceAdjustment(date time.Time, batchID string, newUnitCost decimal.Decimal) *PriceAdjustment {
	return &PriceAdjustment{
		DocumentHeader: newDocumentHeader(date),
		BatchID:        batchID,
		NewUnitCost:    newUnitCost,
	}
}

// Kind returns the document kind
func (d *PriceAdjustment) Kind() DocumentKind { return KindPriceAdjustment }

func (d *PriceAdjustment) sealed() {}

// Validate checks the draft is well formed
func (d *PriceAdjustment) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("batch", d.BatchID); err != nil {
		return err
	}
	if d.NewUnitCost.IsNegative() {
		return fmt.Errorf("%w: new unit cost must not be negative", shared.ErrInvalidInput)
	}
	return nil
}

// StockKeys resolves the key of the adjusted batch
func (d *PriceAdjustment) StockKeys(env KeyEnv) ([]StockKey, error) {
	if env.Batches == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBatch, d.BatchID)
	}
	key, ok := env.Batches.Locate(d.BatchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBatch, d.BatchID)
	}
	return []StockKey{key}, nil
}

// ApplyStock sets the batch unit cost
func (d *PriceAdjustment) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	b, ok := tx.FindBatch(d.BatchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBatch, d.BatchID)
	}
	d.OldUnitCost = b.UnitCost
	d.Item = b.Item
	d.WarehouseID = b.WarehouseID

	b.UnitCost = d.NewUnitCost
	if err := tx.UpdateBatch(b); err != nil {
		return nil, err
	}

	eff := newEffect(d.ID)
	eff.add(b.Key(), decimal.Zero, d.NewUnitCost)
	return eff, nil
}

// Clone returns a deep copy
func (d *PriceAdjustment) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	return &c
}
