package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const snapshotInsertBatch = 200

// GormBatchSnapshotRepository implements inventory.BatchSnapshotRepository
type GormBatchSnapshotRepository struct {
	db *gorm.DB
}

// NewGormBatchSnapshotRepository creates a new GormBatchSnapshotRepository
func NewGormBatchSnapshotRepository(db *gorm.DB) *GormBatchSnapshotRepository {
	return &GormBatchSnapshotRepository{db: db}
}

// ReplaceKeys overwrites the rows of the given keys with batches
func (r *GormBatchSnapshotRepository) ReplaceKeys(ctx context.Context, keys []inventory.StockKey, batches []inventory.StockBatch) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			if err := tx.Where("item_kind = ? AND item_id = ? AND warehouse_id = ?",
				string(k.Item.Kind), k.Item.ID, k.WarehouseID).
				Delete(&models.StockBatchModel{}).Error; err != nil {
				return err
			}
		}
		return insertBatches(tx, batches)
	})
}

// ReplaceAll overwrites the whole snapshot
func (r *GormBatchSnapshotRepository) ReplaceAll(ctx context.Context, batches []inventory.StockBatch) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.StockBatchModel{}).Error; err != nil {
			return err
		}
		return insertBatches(tx, batches)
	})
}

// LoadAll returns the stored snapshot in insertion order
func (r *GormBatchSnapshotRepository) LoadAll(ctx context.Context) ([]inventory.StockBatch, error) {
	var rows []models.StockBatchModel
	if err := r.db.WithContext(ctx).Order("sequence ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]inventory.StockBatch, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToDomain())
	}
	return out, nil
}

func insertBatches(tx *gorm.DB, batches []inventory.StockBatch) error {
	if len(batches) == 0 {
		return nil
	}
	rows := make([]models.StockBatchModel, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, models.StockBatchModelFromDomain(b))
	}
	return tx.CreateInBatches(rows, snapshotInsertBatch).Error
}

var _ inventory.BatchSnapshotRepository = (*GormBatchSnapshotRepository)(nil)
