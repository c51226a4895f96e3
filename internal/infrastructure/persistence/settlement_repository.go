package persistence

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSettlementRepository implements finance.SettlementRepository
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// Save stores an applied settlement. Saving the same id again is a no-op
// because applied allocations never change.
func (r *GormSettlementRepository) Save(ctx context.Context, s *finance.Settlement) error {
	m, err := models.SettlementModelFromDomain(s)
	if err != nil {
		return err
	}
	m.CreatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m).Error
}

// FindAll lists every settlement in the order it was applied
func (r *GormSettlementRepository) FindAll(ctx context.Context) ([]finance.Settlement, error) {
	return r.find(r.db.WithContext(ctx))
}

// FindByCounterparty lists the settlements of one counterparty
func (r *GormSettlementRepository) FindByCounterparty(ctx context.Context, counterpartyID string) ([]finance.Settlement, error) {
	return r.find(r.db.WithContext(ctx).Where("counterparty_id = ?", counterpartyID))
}

func (r *GormSettlementRepository) find(query *gorm.DB) ([]finance.Settlement, error) {
	var rows []models.SettlementModel
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]finance.Settlement, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

var _ finance.SettlementRepository = (*GormSettlementRepository)(nil)
