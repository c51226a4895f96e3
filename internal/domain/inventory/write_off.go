package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// WriteOff removes spoiled or lost stock, oldest batches first
type WriteOff struct {
	DocumentHeader
	WarehouseID string            `json:"warehouse_id"`
	Reason      string            `json:"reason,omitempty"`
	Lines       []ConsumptionLine `json:"lines"`
}

// NewWriteOff creates a draft write-off
func NewWriteOff(date time.Time, warehouseID, reason string) *WriteOff {
	return &WriteOff{
		DocumentHeader: newDocumentHeader(date),
		WarehouseID:    warehouseID,
		Reason:         reason,
	}
}

// AddLine appends an item to write off
func (d *WriteOff) AddLine(item ItemRef, qty decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, ConsumptionLine{Item: item, Quantity: qty})
	return validateLineItem(len(d.Lines)-1, item, qty)
}

// Kind returns the document kind
func (d *WriteOff) Kind() DocumentKind { return KindWriteOff }

func (d *WriteOff) sealed() {}

// TotalCost returns the realized cost of the written-off stock
func (d *WriteOff) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.TotalCost)
	}
	return total
}

// Validate checks the draft is well formed
func (d *WriteOff) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("warehouse", d.WarehouseID); err != nil {
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
func (d *WriteOff) StockKeys(KeyEnv) ([]StockKey, error) {
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	return lineKeys(d.WarehouseID, items...), nil
}

// ApplyStock consumes every line FIFO
func (d *WriteOff) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	eff := newEffect(d.ID)
	if err := consumeLines(ctx, tx, env, eff, d.WarehouseID, d.Date, d.Lines); err != nil {
		return nil, err
	}
	return eff, nil
}

// Clone returns a deep copy
func (d *WriteOff) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = make([]ConsumptionLine, len(d.Lines))
	for i, l := range d.Lines {
		c.Lines[i] = l.clone()
	}
	return &c
}
