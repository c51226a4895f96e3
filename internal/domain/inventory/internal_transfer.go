package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransferLine moves one item between warehouses
type TransferLine struct {
	ConsumptionLine
	// DestinationBatchIDs are the batches created at the destination, one per consumed portion
	DestinationBatchIDs []string `json:"destination_batch_ids,omitempty"`
}

// InternalTransfer moves stock between two warehouses. Every consumed
// portion reappears at the destination with its cost, receipt and expiry dates.
type InternalTransfer struct {
	DocumentHeader
	SourceWarehouseID      string         `json:"source_warehouse_id"`
	DestinationWarehouseID string         `json:"destination_warehouse_id"`
	Lines                  []TransferLine `json:"lines"`
}

// NewInternalTransfer creates a draft transfer
func NewInternalTransfer(date time.Time, sourceWarehouseID, destinationWarehouseID string) *InternalTransfer {
	return &InternalTransfer{
		DocumentHeader:         newDocumentHeader(date),
		SourceWarehouseID:      sourceWarehouseID,
		DestinationWarehouseID: destinationWarehouseID,
	}
}

// AddLine appends an item to move
func (d *InternalTransfer) AddLine(item ItemRef, qty decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, TransferLine{ConsumptionLine: ConsumptionLine{Item: item, Quantity: qty}})
	return validateLineItem(len(d.Lines)-1, item, qty)
}

// Kind returns the document kind
func (d *InternalTransfer) Kind() DocumentKind { return KindInternalTransfer }

func (d *InternalTransfer) sealed() {}

// Validate checks the draft is well formed
func (d *InternalTransfer) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("source warehouse", d.SourceWarehouseID); err != nil {
		return err
	}
	if err := requireField("destination warehouse", d.DestinationWarehouseID); err != nil {
		return err
	}
	if d.SourceWarehouseID == d.DestinationWarehouseID {
		return fmt.Errorf("%w: %s", shared.ErrInvalidWarehouseRoute, d.SourceWarehouseID)
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
func (d *InternalTransfer) StockKeys(KeyEnv) ([]StockKey, error) {
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	keys := lineKeys(d.SourceWarehouseID, items...)
	return append(keys, lineKeys(d.DestinationWarehouseID, items...)...), nil
}

// ApplyStock consumes FIFO at the source and recreates the portions at the destination
func (d *InternalTransfer) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	if d.SourceWarehouseID == d.DestinationWarehouseID {
		return nil, fmt.Errorf("%w: %s", shared.ErrInvalidWarehouseRoute, d.SourceWarehouseID)
	}

	eff := newEffect(d.ID)
	for i := range d.Lines {
		line := &d.Lines[i]
		src := NewStockKey(line.Item, d.SourceWarehouseID)
		c, err := env.Engine.Consume(ctx, tx, src, line.Quantity, d.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		line.record(c)
		eff.add(src, line.Quantity.Neg(), c.UnitCost)

		line.DestinationBatchIDs = make([]string, 0, len(c.Portions))
		for j, p := range c.Portions {
			b := StockBatch{
				ID:               BatchIDFor(d.ID, i, j),
				Item:             line.Item,
				WarehouseID:      d.DestinationWarehouseID,
				Quantity:         p.Quantity,
				UnitCost:         p.UnitCost,
				ReceiptDate:      p.ReceiptDate,
				ExpiryDate:       cloneTime(p.ExpiryDate),
				SourceDocumentID: d.ID,
			}
			if err := tx.AddBatch(b); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			line.DestinationBatchIDs = append(line.DestinationBatchIDs, b.ID)
		}
		eff.add(NewStockKey(line.Item, d.DestinationWarehouseID), line.Quantity, c.UnitCost)
	}
	return eff, nil
}

// Clone returns a deep copy
func (d *InternalTransfer) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = make([]TransferLine, len(d.Lines))
	for i, l := range d.Lines {
		c.Lines[i] = TransferLine{
			ConsumptionLine:     l.ConsumptionLine.clone(),
			DestinationBatchIDs: append([]string(nil), l.DestinationBatchIDs...),
		}
	}
	return &c
}
