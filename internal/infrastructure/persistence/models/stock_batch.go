package models

import (
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockBatchModel is one row of the persisted batch snapshot. Amounts are
// declared as text so SQLite keeps every digit; the postgres schema uses NUMERIC.
type StockBatchModel struct {
	BatchID          string          `gorm:"type:varchar(120);primary_key"`
	ItemKind         string          `gorm:"type:varchar(20);not null;index:idx_stock_batches_key,priority:1"`
	ItemID           string          `gorm:"type:varchar(100);not null;index:idx_stock_batches_key,priority:2"`
	WarehouseID      string          `gorm:"type:varchar(100);not null;index:idx_stock_batches_key,priority:3"`
	Quantity         decimal.Decimal `gorm:"type:varchar(64);not null"`
	UnitCost         decimal.Decimal `gorm:"type:varchar(64);not null"`
	ReceiptDate      time.Time       `gorm:"not null"`
	ExpiryDate       *time.Time
	SourceDocumentID uuid.UUID `gorm:"type:uuid;not null"`
	Sequence         int64     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockBatchModel) TableName() string {
	return "stock_batches"
}

// StockBatchModelFromDomain converts a domain batch
func StockBatchModelFromDomain(b inventory.StockBatch) StockBatchModel {
	return StockBatchModel{
		BatchID:          b.ID,
		ItemKind:         string(b.Item.Kind),
		ItemID:           b.Item.ID,
		WarehouseID:      b.WarehouseID,
		Quantity:         b.Quantity,
		UnitCost:         b.UnitCost,
		ReceiptDate:      b.ReceiptDate,
		ExpiryDate:       b.ExpiryDate,
		SourceDocumentID: b.SourceDocumentID,
		Sequence:         b.Sequence,
	}
}

// ToDomain converts the model to a domain batch
func (m StockBatchModel) ToDomain() inventory.StockBatch {
	return inventory.StockBatch{
		ID:               m.BatchID,
		Item:             inventory.ItemRef{Kind: inventory.ItemKind(m.ItemKind), ID: m.ItemID},
		WarehouseID:      m.WarehouseID,
		Quantity:         m.Quantity,
		UnitCost:         m.UnitCost,
		ReceiptDate:      m.ReceiptDate,
		ExpiryDate:       m.ExpiryDate,
		SourceDocumentID: m.SourceDocumentID,
		Sequence:         m.Sequence,
	}
}
