package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementModel stores an applied payment or credit. Allocations are kept
// as JSON so they can be restored exactly as they were applied.
type SettlementModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	Kind             string          `gorm:"type:varchar(20);not null"`
	CounterpartyID   string          `gorm:"type:varchar(100);not null;index"`
	Direction        string          `gorm:"type:varchar(20);not null"`
	Amount           decimal.Decimal `gorm:"type:varchar(64);not null"`
	Unapplied        decimal.Decimal `gorm:"type:varchar(64);not null"`
	Date             time.Time       `gorm:"not null"`
	TargetDocumentID *uuid.UUID      `gorm:"type:uuid"`
	SourceDocumentID *uuid.UUID      `gorm:"type:uuid;index"`
	Allocations      string          `gorm:"type:text;not null"`
	Note             string          `gorm:"type:text"`
	CreatedAt        time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SettlementModel) TableName() string {
	return "settlements"
}

// SettlementModelFromDomain converts a domain settlement
func SettlementModelFromDomain(s *finance.Settlement) (*SettlementModel, error) {
	allocations := s.Allocations
	if allocations == nil {
		allocations = []finance.SettlementAllocation{}
	}
	raw, err := json.Marshal(allocations)
	if err != nil {
		return nil, fmt.Errorf("encoding allocations of settlement %s: %w", s.ID, err)
	}
	return &SettlementModel{
		ID:               s.ID,
		Kind:             string(s.Kind),
		CounterpartyID:   s.CounterpartyID,
		Direction:        string(s.Direction),
		Amount:           s.Amount,
		Unapplied:        s.Unapplied,
		Date:             s.Date,
		TargetDocumentID: s.TargetDocumentID,
		SourceDocumentID: s.SourceDocumentID,
		Allocations:      string(raw),
		Note:             s.Note,
	}, nil
}

// ToDomain converts the model to a domain settlement
func (m *SettlementModel) ToDomain() (finance.Settlement, error) {
	var allocations []finance.SettlementAllocation
	if err := json.Unmarshal([]byte(m.Allocations), &allocations); err != nil {
		return finance.Settlement{}, fmt.Errorf("decoding allocations of settlement %s: %w", m.ID, err)
	}
	return finance.Settlement{
		ID:               m.ID,
		Kind:             finance.SettlementKind(m.Kind),
		CounterpartyID:   m.CounterpartyID,
		Direction:        finance.Direction(m.Direction),
		Amount:           m.Amount,
		Unapplied:        m.Unapplied,
		Date:             m.Date,
		TargetDocumentID: m.TargetDocumentID,
		SourceDocumentID: m.SourceDocumentID,
		Allocations:      allocations,
		Note:             m.Note,
	}, nil
}
