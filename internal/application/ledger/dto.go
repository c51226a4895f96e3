package ledger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DraftRequest describes a draft document as written in a document file.
// Warehouse is the source warehouse of a transfer; Counterparty is the
// supplier of receipts and returns to supplier and the client of invoices
// and sales returns.
type DraftRequest struct {
	Kind         string             `yaml:"kind" json:"kind" validate:"required,oneof=GOODS_RECEIPT WRITE_OFF GOODS_RETURN INTERNAL_TRANSFER PRICE_ADJUSTMENT PRODUCTION_NOTE SALES_INVOICE SALES_RETURN INVENTORY_COUNT"`
	Date         string             `yaml:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Warehouse    string             `yaml:"warehouse" json:"warehouse" validate:"required_unless=Kind PRICE_ADJUSTMENT,max=100"`
	Destination  string             `yaml:"destination" json:"destination" validate:"required_if=Kind INTERNAL_TRANSFER,max=100"`
	Counterparty string             `yaml:"counterparty" json:"counterparty" validate:"max=100"`
	PaidAmount   string             `yaml:"paid_amount" json:"paid_amount" validate:"omitempty,numeric"`
	Reason       string             `yaml:"reason" json:"reason" validate:"max=200"`
	Note         string             `yaml:"note" json:"note" validate:"max=500"`
	BatchID      string             `yaml:"batch" json:"batch" validate:"required_if=Kind PRICE_ADJUSTMENT"`
	NewUnitCost  string             `yaml:"new_unit_cost" json:"new_unit_cost" validate:"required_if=Kind PRICE_ADJUSTMENT"`
	SalesInvoice string             `yaml:"sales_invoice" json:"sales_invoice" validate:"omitempty,uuid"`
	Disposition  string             `yaml:"disposition" json:"disposition" validate:"required_if=Kind SALES_RETURN"`
	Lines        []DraftLineRequest `yaml:"lines" json:"lines" validate:"required_unless=Kind PRICE_ADJUSTMENT,dive"`
}

// DraftLineRequest is one document line. Item is written product:<id> or
// dish:<id>; lines of dish-only documents may give the bare dish id.
type DraftLineRequest struct {
	Item     string `yaml:"item" json:"item" validate:"required"`
	Quantity string `yaml:"quantity" json:"quantity" validate:"required,numeric"`
	Price    string `yaml:"price" json:"price" validate:"omitempty,numeric"`
	UnitCost string `yaml:"unit_cost" json:"unit_cost" validate:"omitempty,numeric"`
	Expiry   string `yaml:"expiry" json:"expiry" validate:"omitempty,datetime=2006-01-02"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		return name
	})
}

// Validate checks the request shape; document rules are checked by the
// document itself once built
func (r *DraftRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, strings.Join(parts, "; "))
	}
	return nil
}

// ToDocument validates the request and builds the draft document it describes
func (r *DraftRequest) ToDocument() (inventory.Document, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", shared.ErrInvalidInput, r.Date)
	}

	var doc inventory.Document
	switch inventory.DocumentKind(r.Kind) {
	case inventory.KindGoodsReceipt:
		doc, err = r.goodsReceipt(date)
	case inventory.KindWriteOff:
		wo := inventory.NewWriteOff(date, r.Warehouse, r.Reason)
		err = r.eachItem(func(item inventory.ItemRef, qty decimal.Decimal, _ DraftLineRequest) error {
			return wo.AddLine(item, qty)
		})
		doc = wo
	case inventory.KindGoodsReturn:
		ret := inventory.NewGoodsReturn(date, r.Counterparty, r.Warehouse)
		err = r.eachItem(func(item inventory.ItemRef, qty decimal.Decimal, _ DraftLineRequest) error {
			return ret.AddLine(item, qty)
		})
		doc = ret
	case inventory.KindInternalTransfer:
		tr := inventory.NewInternalTransfer(date, r.Warehouse, r.Destination)
		err = r.eachItem(func(item inventory.ItemRef, qty decimal.Decimal, _ DraftLineRequest) error {
			return tr.AddLine(item, qty)
		})
		doc = tr
	case inventory.KindPriceAdjustment:
		var cost decimal.Decimal
		if cost, err = parseDecimal("new_unit_cost", r.NewUnitCost); err == nil {
			doc = inventory.NewPriceAdjustment(date, r.BatchID, cost)
		}
	case inventory.KindProductionNote:
		pn := inventory.NewProductionNote(date, r.Warehouse)
		err = r.eachDish(func(dishID string, qty decimal.Decimal, _ DraftLineRequest) error {
			return pn.AddLine(dishID, qty)
		})
		doc = pn
	case inventory.KindSalesInvoice:
		inv := inventory.NewSalesInvoice(date, r.Counterparty, r.Warehouse)
		err = r.eachDish(func(dishID string, qty decimal.Decimal, l DraftLineRequest) error {
			price, err := parseDecimal("price", l.Price)
			if err != nil {
				return err
			}
			return inv.AddLine(dishID, qty, price)
		})
		doc = inv
	case inventory.KindSalesReturn:
		doc, err = r.salesReturn(date)
	case inventory.KindInventoryCount:
		count := inventory.NewInventoryCount(date, r.Warehouse)
		err = r.eachItem(func(item inventory.ItemRef, qty decimal.Decimal, l DraftLineRequest) error {
			fallback, err := parseDecimal("unit_cost", l.UnitCost)
			if err != nil {
				return err
			}
			return count.AddLine(item, qty, fallback)
		})
		doc = count
	default:
		err = fmt.Errorf("%w: unknown document kind %q", shared.ErrInvalidInput, r.Kind)
	}
	if err != nil {
		return nil, err
	}
	doc.Head().Note = r.Note
	return doc, nil
}

func (r *DraftRequest) goodsReceipt(date time.Time) (inventory.Document, error) {
	gr := inventory.NewGoodsReceipt(date, r.Counterparty, r.Warehouse)
	paid, err := parseDecimal("paid_amount", r.PaidAmount)
	if err != nil {
		return nil, err
	}
	gr.PaidAmount = paid
	err = r.eachItem(func(item inventory.ItemRef, qty decimal.Decimal, l DraftLineRequest) error {
		price, err := parseDecimal("price", l.Price)
		if err != nil {
			return err
		}
		var expiry *time.Time
		if l.Expiry != "" {
			t, err := time.Parse(time.DateOnly, l.Expiry)
			if err != nil {
				return fmt.Errorf("%w: expiry %q", shared.ErrInvalidInput, l.Expiry)
			}
			expiry = &t
		}
		return gr.AddLine(item, qty, price, expiry)
	})
	if err != nil {
		return nil, err
	}
	return gr, nil
}

func (r *DraftRequest) salesReturn(date time.Time) (inventory.Document, error) {
	ret := inventory.NewSalesReturn(date, r.Counterparty, r.Warehouse, inventory.ReturnDisposition(r.Disposition))
	if r.SalesInvoice != "" {
		id, err := uuid.Parse(r.SalesInvoice)
		if err != nil {
			return nil, fmt.Errorf("%w: sales invoice %q", shared.ErrInvalidInput, r.SalesInvoice)
		}
		ret.SalesInvoiceID = &id
	}
	err := r.eachDish(func(dishID string, qty decimal.Decimal, l DraftLineRequest) error {
		price, err := parseDecimal("price", l.Price)
		if err != nil {
			return err
		}
		cost, err := parseDecimal("unit_cost", l.UnitCost)
		if err != nil {
			return err
		}
		return ret.AddLine(dishID, qty, price, cost)
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *DraftRequest) eachItem(add func(inventory.ItemRef, decimal.Decimal, DraftLineRequest) error) error {
	for i, l := range r.Lines {
		item, err := inventory.ParseItemRef(l.Item)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		qty, err := parseDecimal("quantity", l.Quantity)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if err := add(item, qty, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *DraftRequest) eachDish(add func(string, decimal.Decimal, DraftLineRequest) error) error {
	for i, l := range r.Lines {
		dishID := l.Item
		if strings.Contains(l.Item, ":") {
			item, err := inventory.ParseItemRef(l.Item)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			if !item.IsDish() {
				return fmt.Errorf("%w: line %d: %s is not a dish", shared.ErrInvalidInput, i+1, l.Item)
			}
			dishID = item.ID
		}
		qty, err := parseDecimal("quantity", l.Quantity)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if err := add(dishID, qty, l); err != nil {
			return err
		}
	}
	return nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q", shared.ErrInvalidInput, field, s)
	}
	return d, nil
}

// DocumentSummary is the listing form of a document
type DocumentSummary struct {
	ID          uuid.UUID                `json:"id"`
	Number      string                   `json:"number"`
	Kind        inventory.DocumentKind   `json:"kind"`
	Date        time.Time                `json:"date"`
	Status      inventory.DocumentStatus `json:"status"`
	ConfirmedAt *time.Time               `json:"confirmed_at,omitempty"`
	Note        string                   `json:"note,omitempty"`
}

// ToDocumentSummary converts a document to its listing form
func ToDocumentSummary(doc inventory.Document) DocumentSummary {
	h := doc.Head()
	return DocumentSummary{
		ID:          h.ID,
		Number:      h.Number,
		Kind:        doc.Kind(),
		Date:        h.Date,
		Status:      h.Status,
		ConfirmedAt: h.ConfirmedAt,
		Note:        h.Note,
	}
}
