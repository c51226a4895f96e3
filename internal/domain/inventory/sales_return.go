package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnDisposition says what happens to returned dishes
type ReturnDisposition string

const (
	ReturnToStock  ReturnDisposition = "RETURN_TO_STOCK"
	ReturnWriteOff ReturnDisposition = "WRITE_OFF"
)

// IsValid returns true if the disposition is known
func (r ReturnDisposition) IsValid() bool {
	return r == ReturnToStock || r == ReturnWriteOff
}

// SalesReturnLine is one returned dish. UnitCost is the cost the dish was
// originally sold at.
type SalesReturnLine struct {
	Item     ItemRef         `json:"item"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// SalesReturn takes dishes back from a client
type SalesReturn struct {
	DocumentHeader
	ClientID       string            `json:"client_id"`
	WarehouseID    string            `json:"warehouse_id"`
	SalesInvoiceID *uuid.UUID        `json:"sales_invoice_id,omitempty"`
	Disposition    ReturnDisposition `json:"disposition"`
	Lines          []SalesReturnLine `json:"lines"`
}

// NewSalesReturn creates a draft sales return
func NewSalesReturn(date time.Time, clientID, warehouseID string, disposition ReturnDisposition) *SalesReturn {
	return &SalesReturn{
		DocumentHeader: newDocumentHeader(date),
		ClientID:       clientID,
		WarehouseID:    warehouseID,
		Disposition:    disposition,
	}
}

// AddLine appends a returned dish
func (d *SalesReturn) AddLine(dishID string, qty, price, unitCost decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, SalesReturnLine{Item: DishRef(dishID), Quantity: qty, Price: price, UnitCost: unitCost})
	return validateReturnLine(len(d.Lines)-1, d.Lines[len(d.Lines)-1])
}

// Kind returns the document kind
func (d *SalesReturn) Kind() DocumentKind { return KindSalesReturn }

func (d *SalesReturn) sealed() {}

// CreditAmount returns the amount credited back to the client
func (d *SalesReturn) CreditAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Quantity.Mul(l.Price))
	}
	return total
}

// Validate checks the draft is well formed
func (d *SalesReturn) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("warehouse", d.WarehouseID); err != nil {
		return err
	}
	if !d.Disposition.IsValid() {
		return fmt.Errorf("%w: unknown return disposition %q", shared.ErrInvalidInput, d.Disposition)
	}
	if d.Disposition == ReturnToStock && d.SalesInvoiceID == nil {
		return fmt.Errorf("%w: a return to stock must reference its sales invoice", shared.ErrInvalidInput)
	}
	if err := requireLines(len(d.Lines)); err != nil {
		return err
	}
	for i, l := range d.Lines {
		if err := validateReturnLine(i, l); err != nil {
			return err
		}
	}
	return nil
}

func validateReturnLine(i int, l SalesReturnLine) error {
	if err := validateLineItem(i, l.Item, l.Quantity); err != nil {
		return err
	}
	if l.Price.IsNegative() || l.UnitCost.IsNegative() {
		return fmt.Errorf("%w: line %d price and cost must not be negative", shared.ErrInvalidInput, i+1)
	}
	return nil
}

// PriceFrom checks the return against the invoice it references and copies
// the cost each dish was sold at. earlier holds the confirmed returns already
// booked against the same invoice; together with d they may not take back
// more of a dish than was sold.
func (d *SalesReturn) PriceFrom(invoice *SalesInvoice, earlier []*SalesReturn) error {
	if d.SalesInvoiceID == nil || *d.SalesInvoiceID != invoice.ID {
		return fmt.Errorf("%w: return does not reference %s", shared.ErrInvalidInput, invoice.Number)
	}
	if !invoice.IsConfirmed() {
		return fmt.Errorf("%w: %s is not confirmed", shared.ErrInvalidState, invoice.Number)
	}
	if invoice.ClientID != d.ClientID {
		return fmt.Errorf("%w: invoice %s belongs to client %s", shared.ErrInvalidInput, invoice.Number, invoice.ClientID)
	}

	returned := make(map[ItemRef]decimal.Decimal)
	for _, r := range earlier {
		if r.ID == d.ID {
			continue
		}
		for _, l := range r.Lines {
			returned[l.Item] = returned[l.Item].Add(l.Quantity)
		}
	}
	for i := range d.Lines {
		l := &d.Lines[i]
		sold, unitCost, ok := invoice.Sold(l.Item)
		if !ok {
			return fmt.Errorf("%w: line %d: %s was not sold on %s", shared.ErrInvalidInput, i+1, l.Item, invoice.Number)
		}
		returned[l.Item] = returned[l.Item].Add(l.Quantity)
		if returned[l.Item].GreaterThan(sold) {
			return fmt.Errorf("%w: line %d: %s returns %s of %s sold on %s",
				shared.ErrInvalidInput, i+1, l.Item, returned[l.Item], sold, invoice.Number)
		}
		l.UnitCost = unitCost
	}
	return nil
}

// StockKeys lists every key the document will touch
func (d *SalesReturn) StockKeys(KeyEnv) ([]StockKey, error) {
	if d.Disposition != ReturnToStock {
		return nil, nil
	}
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	return lineKeys(d.WarehouseID, items...), nil
}

// ApplyStock re-adds returned dishes as new batches at their sold cost.
// Written-off returns have no stock effect.
func (d *SalesReturn) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	eff := newEffect(d.ID)
	if d.Disposition != ReturnToStock {
		return eff, nil
	}
	for i, l := range d.Lines {
		b := StockBatch{
			ID:               BatchIDFor(d.ID, i),
			Item:             l.Item,
			WarehouseID:      d.WarehouseID,
			Quantity:         l.Quantity,
			UnitCost:         l.UnitCost,
			ReceiptDate:      d.Date,
			SourceDocumentID: d.ID,
		}
		if err := tx.AddBatch(b); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		eff.add(b.Key(), l.Quantity, l.UnitCost)
	}
	return eff, nil
}

// Clone returns a deep copy
func (d *SalesReturn) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.SalesInvoiceID = cloneUUID(d.SalesInvoiceID)
	c.Lines = append([]SalesReturnLine(nil), d.Lines...)
	return &c
}
