package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SaleLine is one sold dish; the embedded consumption records its COGS
type SaleLine struct {
	ConsumptionLine
	Price decimal.Decimal `json:"price"`
}

// SalesInvoice sells dishes to a client
type SalesInvoice struct {
	DocumentHeader
	ClientID    string     `json:"client_id"`
	WarehouseID string     `json:"warehouse_id"`
	Lines       []SaleLine `json:"lines"`
}

// NewSalesInvoice creates a draft sales invoice
func NewSalesInvoice(date time.Time, clientID, warehouseID string) *SalesInvoice {
	return &SalesInvoice{
		DocumentHeader: newDocumentHeader(date),
		ClientID:       clientID,
		WarehouseID:    warehouseID,
	}
}

// AddLine appends a sold dish
func (d *SalesInvoice) AddLine(dishID string, qty, price decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, SaleLine{ConsumptionLine: ConsumptionLine{Item: DishRef(dishID), Quantity: qty}, Price: price})
	return validateSaleLine(len(d.Lines)-1, d.Lines[len(d.Lines)-1])
}

// Kind returns the document kind
func (d *SalesInvoice) Kind() DocumentKind { return KindSalesInvoice }

func (d *SalesInvoice) sealed() {}

// Revenue returns the amount receivable from the client
func (d *SalesInvoice) Revenue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Quantity.Mul(l.Price))
	}
	return total
}

// COGS returns the realized cost of the sold dishes
func (d *SalesInvoice) COGS() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.TotalCost)
	}
	return total
}

// Sold returns the quantity of item sold across all lines and the
// quantity-weighted cost it was sold at
func (d *SalesInvoice) Sold(item ItemRef) (qty, unitCost decimal.Decimal, ok bool) {
	total := decimal.Zero
	for _, l := range d.Lines {
		if l.Item != item {
			continue
		}
		ok = true
		qty = qty.Add(l.Quantity)
		total = total.Add(l.TotalCost)
	}
	if !ok || qty.IsZero() {
		return qty, decimal.Zero, ok
	}
	return qty, total.Div(qty), true
}

// Validate checks the draft is well formed
func (d *SalesInvoice) Validate() error {
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
		if err := validateSaleLine(i, l); err != nil {
			return err
		}
	}
	return nil
}

func validateSaleLine(i int, l SaleLine) error {
	if err := validateLineItem(i, l.Item, l.Quantity); err != nil {
		return err
	}
	if !l.Item.IsDish() {
		return fmt.Errorf("%w: line %d: only dishes can be sold, got %s", shared.ErrInvalidInput, i+1, l.Item)
	}
	if l.Price.IsNegative() {
		return fmt.Errorf("%w: line %d price must not be negative", shared.ErrInvalidInput, i+1)
	}
	return nil
}

// StockKeys lists every key the document will touch
func (d *SalesInvoice) StockKeys(KeyEnv) ([]StockKey, error) {
	items := make([]ItemRef, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, l.Item)
	}
	return lineKeys(d.WarehouseID, items...), nil
}

// ApplyStock consumes the sold dishes FIFO and records COGS per line
func (d *SalesInvoice) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	eff := newEffect(d.ID)
	for i := range d.Lines {
		line := &d.Lines[i]
		key := NewStockKey(line.Item, d.WarehouseID)
		c, err := env.Engine.Consume(ctx, tx, key, line.Quantity, d.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		line.record(c)
		eff.add(key, line.Quantity.Neg(), c.UnitCost)
	}
	return eff, nil
}

// Clone returns a deep copy
func (d *SalesInvoice) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = make([]SaleLine, len(d.Lines))
	for i, l := range d.Lines {
		c.Lines[i] = SaleLine{ConsumptionLine: l.ConsumptionLine.clone(), Price: l.Price}
	}
	return &c
}
