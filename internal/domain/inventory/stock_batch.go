package inventory

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepletionEpsilon is the quantity under which a consumed batch is dropped
var DepletionEpsilon = decimal.New(1, -3)

// StockBatch is a quantity of one item in one warehouse acquired together
// at a single unit cost.
type StockBatch struct {
	ID               string          `json:"id"`
	Item             ItemRef         `json:"item"`
	WarehouseID      string          `json:"warehouse_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	ReceiptDate      time.Time       `json:"receipt_date"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	SourceDocumentID uuid.UUID       `json:"source_document_id"`
	// Sequence orders batches that share a receipt date; assigned on insert
	Sequence int64 `json:"sequence"`
}

// Key returns the stock key the batch belongs to
func (b StockBatch) Key() StockKey {
	return StockKey{Item: b.Item, WarehouseID: b.WarehouseID}
}

// Value returns quantity times unit cost
func (b StockBatch) Value() decimal.Decimal {
	return b.Quantity.Mul(b.UnitCost)
}

// IsDepleted returns true when the remaining quantity is negligible
func (b StockBatch) IsDepleted() bool {
	return b.Quantity.LessThan(DepletionEpsilon)
}

// IsExpiredAt reports whether the batch expiry lies before t.
// Expiry is informational and never affects consumption order.
func (b StockBatch) IsExpiredAt(t time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(t)
}

// sameState compares everything except the insertion sequence
func (b StockBatch) sameState(o StockBatch) bool {
	if b.ID != o.ID || b.Item != o.Item || b.WarehouseID != o.WarehouseID {
		return false
	}
	if !b.Quantity.Equal(o.Quantity) || !b.UnitCost.Equal(o.UnitCost) || !b.ReceiptDate.Equal(o.ReceiptDate) {
		return false
	}
	if (b.ExpiryDate == nil) != (o.ExpiryDate == nil) {
		return false
	}
	return b.ExpiryDate == nil || b.ExpiryDate.Equal(*o.ExpiryDate)
}

// BatchIDFor derives a deterministic batch id from the creating document
// and the line (and portion) that produced it, so replays recreate the same ids.
func BatchIDFor(documentID uuid.UUID, parts ...int) string {
	var sb strings.Builder
	sb.WriteString(documentID.String())
	for _, p := range parts {
		sb.WriteByte('/')
		sb.WriteString(strconv.Itoa(p + 1))
	}
	return sb.String()
}
