package finance

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells who owes whom
type Direction string

const (
	// DirectionPayable is money owed to a supplier
	DirectionPayable Direction = "PAYABLE"
	// DirectionReceivable is money a client owes us
	DirectionReceivable Direction = "RECEIVABLE"
)

// IsValid returns true if the direction is known
func (d Direction) IsValid() bool {
	return d == DirectionPayable || d == DirectionReceivable
}

// DebtDocument is a confirmed document that created a debt
type DebtDocument struct {
	DocumentID     uuid.UUID       `json:"document_id"`
	Number         string          `json:"number"`
	CounterpartyID string          `json:"counterparty_id"`
	Direction      Direction       `json:"direction"`
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Settled        decimal.Decimal `json:"settled"`
}

// Outstanding returns the unsettled amount
func (d DebtDocument) Outstanding() decimal.Decimal {
	return d.Amount.Sub(d.Settled)
}

// IsSettled returns true when nothing is left to pay
func (d DebtDocument) IsSettled() bool {
	return !d.Outstanding().IsPositive()
}

func (d DebtDocument) validate() error {
	if d.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: debt document id is required", shared.ErrInvalidInput)
	}
	if d.CounterpartyID == "" {
		return fmt.Errorf("%w: debt counterparty is required", shared.ErrInvalidInput)
	}
	if !d.Direction.IsValid() {
		return fmt.Errorf("%w: unknown debt direction %q", shared.ErrInvalidInput, d.Direction)
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("%w: debt amount must not be negative", shared.ErrInvalidInput)
	}
	return nil
}

// SettlementKind distinguishes cash payments from credits raised by returns
type SettlementKind string

const (
	SettlementPayment SettlementKind = "PAYMENT"
	SettlementCredit  SettlementKind = "CREDIT"
)

// SettlementAllocation is the part of a settlement applied to one document
type SettlementAllocation struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Number     string          `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
}

// Settlement is a payment or credit reducing a counterparty's debts.
// Allocations are fixed once applied and restored verbatim on reload.
type Settlement struct {
	ID             uuid.UUID       `json:"id"`
	Kind           SettlementKind  `json:"kind"`
	CounterpartyID string          `json:"counterparty_id"`
	Direction      Direction       `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"`
	// TargetDocumentID directs the settlement at one document first
	TargetDocumentID *uuid.UUID `json:"target_document_id,omitempty"`
	// SourceDocumentID is the document that raised a credit
	SourceDocumentID *uuid.UUID             `json:"source_document_id,omitempty"`
	Allocations      []SettlementAllocation `json:"allocations"`
	Unapplied        decimal.Decimal        `json:"unapplied"`
	Note             string                 `json:"note,omitempty"`
}

// NewPayment creates a cash payment settlement
func NewPayment(counterpartyID string, direction Direction, amount decimal.Decimal, date time.Time) *Settlement {
	return &Settlement{
		ID:             uuid.New(),
		Kind:           SettlementPayment,
		CounterpartyID: counterpartyID,
		Direction:      direction,
		Amount:         amount,
		Date:           date,
	}
}

// DerivedSettlementID returns a stable id for a settlement raised by a
// document, so re-emitting the document does not apply it twice.
func DerivedSettlementID(documentID uuid.UUID, purpose string) uuid.UUID {
	return uuid.NewSHA1(documentID, []byte(purpose))
}

// Applied returns the allocated part of the settlement
func (s *Settlement) Applied() decimal.Decimal {
	total := decimal.Zero
	for _, a := range s.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

func (s *Settlement) validate() error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: settlement id is required", shared.ErrInvalidInput)
	}
	if s.CounterpartyID == "" {
		return fmt.Errorf("%w: settlement counterparty is required", shared.ErrInvalidInput)
	}
	if !s.Direction.IsValid() {
		return fmt.Errorf("%w: unknown settlement direction %q", shared.ErrInvalidInput, s.Direction)
	}
	if !s.Amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount must be positive", shared.ErrInvalidInput)
	}
	return nil
}

func (s *Settlement) clone() Settlement {
	c := *s
	c.Allocations = append([]SettlementAllocation(nil), s.Allocations...)
	return c
}
