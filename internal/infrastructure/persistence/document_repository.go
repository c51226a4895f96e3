package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDocumentRepository implements inventory.DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// FindByID finds a document by its ID
func (r *GormDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (inventory.Document, error) {
	var m models.DocumentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: document %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return m.ToDomain()
}

// FindAll lists documents matching filter ordered by date then number
func (r *GormDocumentRepository) FindAll(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.Document, error) {
	query := r.db.WithContext(ctx).Model(&models.DocumentModel{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var rows []models.DocumentModel
	if err := query.Order("date ASC").Order("number ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDocuments(rows)
}

// FindConfirmed lists confirmed documents in replay order
func (r *GormDocumentRepository) FindConfirmed(ctx context.Context) ([]inventory.Document, error) {
	var rows []models.DocumentModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(inventory.StatusConfirmed)).
		Order("date ASC").
		Order("confirm_seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDocuments(rows)
}

// Save creates or updates a document
func (r *GormDocumentRepository) Save(ctx context.Context, doc inventory.Document) error {
	return r.SaveAll(ctx, []inventory.Document{doc})
}

// SaveAll upserts every document in one transaction. Confirmed documents
// without a sequence draw theirs from the confirm_seq counter, whose row
// stays locked until commit, so sequences follow commit order. Drafts
// saved with their own number push the kind's counter past it.
func (r *GormDocumentRepository) SaveAll(ctx context.Context, docs []inventory.Document) error {
	if len(docs) == 0 {
		return nil
	}
	var unsequenced []*inventory.DocumentHeader
	for _, doc := range docs {
		if h := doc.Head(); h.IsConfirmed() && h.ConfirmSeq == 0 {
			unsequenced = append(unsequenced, h)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if n := int64(len(unsequenced)); n > 0 {
			last, err := incrementCounter(tx, confirmSeqCounter, n)
			if err != nil {
				return err
			}
			for i, h := range unsequenced {
				h.ConfirmSeq = last - n + int64(i) + 1
			}
		}
		for _, doc := range docs {
			if n, ok := doc.Kind().ParseNumber(doc.Head().Number); ok && !doc.Head().IsConfirmed() {
				if err := raiseCounter(tx, numberCounter(doc.Kind()), int64(n)); err != nil {
					return err
				}
			}
			m, err := models.DocumentModelFromDomain(doc)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, h := range unsequenced {
			h.ConfirmSeq = 0
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: document number already used", shared.ErrAlreadyExists)
	}
	return err
}

// FindConfirmedAfter lists confirmed documents sequenced after seq
func (r *GormDocumentRepository) FindConfirmedAfter(ctx context.Context, seq int64) ([]inventory.Document, error) {
	var rows []models.DocumentModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND confirm_seq > ?", string(inventory.StatusConfirmed), seq).
		Order("confirm_seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDocuments(rows)
}

// LatestConfirmSeq returns the last confirm sequence handed out
func (r *GormDocumentRepository) LatestConfirmSeq(ctx context.Context) (int64, error) {
	var c models.CounterModel
	err := r.db.WithContext(ctx).First(&c, "name = ?", confirmSeqCounter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return c.Seq, err
}

// NextNumber reserves the next number of kind
func (r *GormDocumentRepository) NextNumber(ctx context.Context, kind inventory.DocumentKind) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: unknown document kind %q", shared.ErrInvalidInput, kind)
	}
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = incrementCounter(tx, numberCounter(kind), 1)
		return err
	})
	if err != nil {
		return "", err
	}
	return kind.FormatNumber(int(n)), nil
}

// Delete removes a document
func (r *GormDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.DocumentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: document %s", shared.ErrNotFound, id)
	}
	return nil
}

const confirmSeqCounter = "confirm_seq"

func numberCounter(kind inventory.DocumentKind) string {
	return "number:" + kind.String()
}

// incrementCounter adds n to the named counter, creating it at n, and
// returns the new value. The row stays locked until tx ends.
func incrementCounter(tx *gorm.DB, name string, n int64) (int64, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seq": gorm.Expr("ledger_counters.seq + ?", n),
		}),
	}).Create(&models.CounterModel{Name: name, Seq: n}).Error
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", name, err)
	}
	var c models.CounterModel
	if err := tx.First(&c, "name = ?", name).Error; err != nil {
		return 0, fmt.Errorf("reading %s: %w", name, err)
	}
	return c.Seq, nil
}

// raiseCounter moves the named counter up to n unless it is already past it
func raiseCounter(tx *gorm.DB, name string, n int64) error {
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seq": gorm.Expr("CASE WHEN ledger_counters.seq < ? THEN ? ELSE ledger_counters.seq END", n, n),
		}),
	}).Create(&models.CounterModel{Name: name, Seq: n}).Error
	if err != nil {
		return fmt.Errorf("raising %s: %w", name, err)
	}
	return nil
}

func toDocuments(rows []models.DocumentModel) ([]inventory.Document, error) {
	out := make([]inventory.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

var _ inventory.DocumentRepository = (*GormDocumentRepository)(nil)
