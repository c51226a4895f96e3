package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CountLine is one counted item. FallbackUnitCost prices a surplus when the
// warehouse holds no batches of the item to average over.
type CountLine struct {
	Item             ItemRef         `json:"item"`
	CountedQuantity  decimal.Decimal `json:"counted_quantity"`
	FallbackUnitCost decimal.Decimal `json:"fallback_unit_cost"`
	SystemQuantity   decimal.Decimal `json:"system_quantity"`
	Difference       decimal.Decimal `json:"difference"`
}

// InventoryCount records a physical count. It never moves stock itself:
// reconciling it produces a surplus GoodsReceipt and a shortage WriteOff
// that are confirmed together with the count.
type InventoryCount struct {
	DocumentHeader
	WarehouseID        string      `json:"warehouse_id"`
	Lines              []CountLine `json:"lines"`
	SurplusReceiptID   *uuid.UUID  `json:"surplus_receipt_id,omitempty"`
	ShortageWriteOffID *uuid.UUID  `json:"shortage_write_off_id,omitempty"`
}

// NewInventoryCount creates a draft inventory count
func NewInventoryCount(date time.Time, warehouseID string) *InventoryCount {
	return &InventoryCount{
		DocumentHeader: newDocumentHeader(date),
		WarehouseID:    warehouseID,
	}
}

// AddLine records a counted quantity
func (d *InventoryCount) AddLine(item ItemRef, counted, fallbackUnitCost decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, CountLine{Item: item, CountedQuantity: counted, FallbackUnitCost: fallbackUnitCost})
	return validateCountLine(len(d.Lines)-1, d.Lines[len(d.Lines)-1])
}

// Kind returns the document kind
func (d *InventoryCount) Kind() DocumentKind { return KindInventoryCount }

func (d *InventoryCount) sealed() {}

// Validate checks the draft is well formed
func (d *InventoryCount) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("warehouse", d.WarehouseID); err != nil {
		return err
	}
	if err := requireLines(len(d.Lines)); err != nil {
		return err
	}
	seen := make(map[ItemRef]struct{}, len(d.Lines))
	for i, l := range d.Lines {
		if err := validateCountLine(i, l); err != nil {
			return err
		}
		if _, dup := seen[l.Item]; dup {
			return fmt.Errorf("%w: line %d: %s counted twice", shared.ErrInvalidInput, i+1, l.Item)
		}
		seen[l.Item] = struct{}{}
	}
	return nil
}

func validateCountLine(i int, l CountLine) error {
	if err := l.Item.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", i+1, err)
	}
	if l.CountedQuantity.IsNegative() {
		return fmt.Errorf("%w: line %d counted quantity must not be negative", shared.ErrInvalidInput, i+1)
	}
	if l.FallbackUnitCost.IsNegative() {
		return fmt.Errorf("%w: line %d fallback cost must not be negative", shared.ErrInvalidInput, i+1)
	}
	return nil
}

// StockKeys lists every counted key
func (d *InventoryCount) StockKeys(KeyEnv) ([]StockKey, error) {
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	return lineKeys(d.WarehouseID, items...), nil
}

// ApplyStock has no effect; stock moves through the reconciliation documents
func (d *InventoryCount) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	return newEffect(d.ID), nil
}

// Reconcile compares the counted quantities with tx and builds the
// documents that settle the difference. Either result may be nil. Surplus is
// priced at the current average cost of the key, or the line fallback cost
// when the key holds nothing.
func (d *InventoryCount) Reconcile(ctx context.Context, tx *StockTx, engine *ConsumptionEngine) (*GoodsReceipt, *WriteOff, error) {
	var receipt *GoodsReceipt
	var writeOff *WriteOff

	for i := range d.Lines {
		line := &d.Lines[i]
		key := NewStockKey(line.Item, d.WarehouseID)
		line.SystemQuantity = tx.OnHand(key)
		line.Difference = line.CountedQuantity.Sub(line.SystemQuantity)

		switch {
		case line.Difference.IsPositive():
			cost, ok, err := engine.AverageCost(ctx, tx, key)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			if !ok {
				cost = line.FallbackUnitCost
			}
			if receipt == nil {
				receipt = NewGoodsReceipt(d.Date, "", d.WarehouseID)
				receipt.Note = "surplus from inventory count"
				receipt.SourceDocumentID = &d.ID
			}
			receipt.Lines = append(receipt.Lines, ReceiptLine{Item: line.Item, Quantity: line.Difference, Price: cost})
		case line.Difference.IsNegative():
			if writeOff == nil {
				writeOff = NewWriteOff(d.Date, d.WarehouseID, "inventory count shortage")
				writeOff.SourceDocumentID = &d.ID
			}
			writeOff.Lines = append(writeOff.Lines, ConsumptionLine{Item: line.Item, Quantity: line.Difference.Neg()})
		}
	}

	if receipt != nil {
		d.SurplusReceiptID = &receipt.ID
	}
	if writeOff != nil {
		d.ShortageWriteOffID = &writeOff.ID
	}
	return receipt, writeOff, nil
}

// Clone returns a deep copy
func (d *InventoryCount) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = append([]CountLine(nil), d.Lines...)
	c.SurplusReceiptID = cloneUUID(d.SurplusReceiptID)
	c.ShortageWriteOffID = cloneUUID(d.ShortageWriteOffID)
	return &c
}
