package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ReceiptLine is one received item
type ReceiptLine struct {
	Item       ItemRef         `json:"item"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// GoodsReceipt brings purchased stock into a warehouse, one batch per line
type GoodsReceipt struct {
	DocumentHeader
	SupplierID  string          `json:"supplier_id"`
	WarehouseID string          `json:"warehouse_id"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Lines       []ReceiptLine   `json:"lines"`
}

// NewGoodsReceipt creates a draft goods receipt
func NewGoodsReceipt(date time.Time, supplierID, warehouseID string) *GoodsReceipt {
	return &GoodsReceipt{
		DocumentHeader: newDocumentHeader(date),
		SupplierID:     supplierID,
		WarehouseID:    warehouseID,
	}
}

// AddLine appends a received item
func (d *GoodsReceipt) AddLine(item ItemRef, qty, price decimal.Decimal, expiry *time.Time) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, ReceiptLine{Item: item, Quantity: qty, Price: price, ExpiryDate: expiry})
	return validateReceiptLine(len(d.Lines)-1, d.Lines[len(d.Lines)-1])
}

// Kind returns the document kind
func (d *GoodsReceipt) Kind() DocumentKind { return KindGoodsReceipt }

func (d *GoodsReceipt) sealed() {}

// Total returns the purchase value of the receipt
func (d *GoodsReceipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Quantity.Mul(l.Price))
	}
	return total
}

// Validate checks the draft is well formed
func (d *GoodsReceipt) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("warehouse", d.WarehouseID); err != nil {
		return err
	}
	if d.PaidAmount.IsNegative() {
		return fmt.Errorf("%w: paid amount must not be negative", shared.ErrInvalidInput)
	}
	if err := requireLines(len(d.Lines)); err != nil {
		return err
	}
	for i, l := range d.Lines {
		if err := validateReceiptLine(i, l); err != nil {
			return err
		}
	}
	return nil
}

func validateReceiptLine(i int, l ReceiptLine) error {
	if err := validateLineItem(i, l.Item, l.Quantity); err != nil {
		return err
	}
	if l.Price.IsNegative() {
		return fmt.Errorf("%w: line %d price must not be negative", shared.ErrInvalidInput, i+1)
	}
	return nil
}

// StockKeys lists every key the document will touch
func (d *GoodsReceipt) StockKeys(KeyEnv) ([]StockKey, error) {
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	return lineKeys(d.WarehouseID, items...), nil
}

// ApplyStock creates one batch per line at the line price
func (d *GoodsReceipt) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	eff := newEffect(d.ID)
	for i, l := range d.Lines {
		b := StockBatch{
			ID:               BatchIDFor(d.ID, i),
			Item:             l.Item,
			WarehouseID:      d.WarehouseID,
			Quantity:         l.Quantity,
			UnitCost:         l.Price,
			ReceiptDate:      d.Date,
			ExpiryDate:       cloneTime(l.ExpiryDate),
			SourceDocumentID: d.ID,
		}
		if err := tx.AddBatch(b); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		eff.add(b.Key(), l.Quantity, l.Price)
	}
	return eff, nil
}

// Clone returns a deep copy
func (d *GoodsReceipt) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = make([]ReceiptLine, len(d.Lines))
	for i, l := range d.Lines {
		l.ExpiryDate = cloneTime(l.ExpiryDate)
		c.Lines[i] = l
	}
	return &c
}
