package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GoodsReturn sends stock back to a supplier. The consumed cost reduces
// what is owed to the supplier.
type GoodsReturn struct {
	DocumentHeader
	SupplierID  string            `json:"supplier_id"`
	WarehouseID string            `json:"warehouse_id"`
	Lines       []ConsumptionLine `json:"lines"`
}

// NewGoodsReturn creates a draft goods return
func NewGoodsReturn(date time.Time, supplierID, warehouseID string) *GoodsReturn {
	return &GoodsReturn{
		DocumentHeader: newDocumentHeader(date),
		SupplierID:     supplierID,
		WarehouseID:    warehouseID,
	}
}

// AddLine appends an item to return
func (d *GoodsReturn) AddLine(item ItemRef, qty decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, ConsumptionLine{Item: item, Quantity: qty})
	return validateLineItem(len(d.Lines)-1, item, qty)
}

// Kind returns the document kind
func (d *GoodsReturn) Kind() DocumentKind { return KindGoodsReturn }

func (d *GoodsReturn) sealed() {}

// Value returns the realized cost of the returned stock
func (d *GoodsReturn) Value() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.TotalCost)
	}
	return total
}

// Validate checks the draft is well formed
func (d *GoodsReturn) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("warehouse", d.WarehouseID); err != nil {
		return err
	}
	if err := requireField("supplier", d.SupplierID); err != nil {
		return err
	}
	if err := requireLines(len(d.Lines)); err != nil {
		return err
	}
	for i, l := range d.Lines {
		if err := validateLineItem(i, l.Item, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// StockKeys lists every key the document will touch
func (d *GoodsReturn) StockKeys(KeyEnv) ([]StockKey, error) {
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	return lineKeys(d.WarehouseID, items...), nil
}

// ApplyStock consumes every line FIFO
func (d *GoodsReturn) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	eff := newEffect(d.ID)
	if err := consumeLines(ctx, tx, env, eff, d.WarehouseID, d.Date, d.Lines); err != nil {
		return nil, err
	}
	return eff, nil
}

// Clone returns a deep copy
func (d *GoodsReturn) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = make([]ConsumptionLine, len(d.Lines))
	for i, l := range d.Lines {
		c.Lines[i] = l.clone()
	}
	return &c
}
