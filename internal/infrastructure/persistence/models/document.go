package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
)

// DocumentModel stores one ledger document. Columns used for lookups and
// replay ordering are broken out; the full document is kept as JSON.
type DocumentModel struct {
	AggregateModel
	Kind        string     `gorm:"type:varchar(30);not null;uniqueIndex:idx_documents_kind_number,priority:1"`
	Number      string     `gorm:"type:varchar(30);not null;uniqueIndex:idx_documents_kind_number,priority:2"`
	Date        time.Time  `gorm:"not null;index:idx_documents_replay,priority:1"`
	Status      string     `gorm:"type:varchar(20);not null;index"`
	ConfirmSeq  int64      `gorm:"not null;default:0;index:idx_documents_replay,priority:2"`
	ConfirmedAt *time.Time `gorm:""`
	SourceID    *uuid.UUID `gorm:"type:uuid;index"`
	Payload     string     `gorm:"type:text;not null"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "ledger_documents"
}

// DocumentModelFromDomain encodes doc into a model
func DocumentModelFromDomain(doc inventory.Document) (*DocumentModel, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", doc.Kind(), doc.Head().ID, err)
	}
	h := doc.Head()
	m := &DocumentModel{
		Kind:        doc.Kind().String(),
		Number:      h.Number,
		Date:        h.Date,
		Status:      string(h.Status),
		ConfirmSeq:  h.ConfirmSeq,
		ConfirmedAt: h.ConfirmedAt,
		SourceID:    h.SourceDocumentID,
		Payload:     string(payload),
	}
	m.FromDomainAggregateRoot(h.BaseAggregateRoot)
	return m, nil
}

// ToDomain decodes the stored document
func (m *DocumentModel) ToDomain() (inventory.Document, error) {
	doc, err := inventory.NewDocument(inventory.DocumentKind(m.Kind))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(m.Payload), doc); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", m.Kind, m.ID, err)
	}
	return doc, nil
}
