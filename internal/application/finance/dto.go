package finance

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})
}

// RecordPaymentRequest is a payment to or from a counterparty
type RecordPaymentRequest struct {
	CounterpartyID string `json:"counterparty_id" validate:"required,max=100"`
	Direction      string `json:"direction" validate:"required,oneof=PAYABLE RECEIVABLE"`
	Amount         string `json:"amount" validate:"required,numeric"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	// TargetDocumentID pays one document first
	TargetDocumentID string `json:"target_document_id" validate:"omitempty,uuid"`
	Note             string `json:"note" validate:"max=500"`
}

// Validate checks the request shape
func (r *RecordPaymentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
		}
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, strings.Join(parts, "; "))
	}
	return nil
}

// ToSettlement validates the request and builds the payment settlement
func (r *RecordPaymentRequest) ToSettlement() (*finance.Settlement, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", shared.ErrInvalidInput, r.Amount)
	}
	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", shared.ErrInvalidInput, r.Date)
	}

	s := finance.NewPayment(r.CounterpartyID, finance.Direction(r.Direction), amount, date)
	s.Note = r.Note
	if r.TargetDocumentID != "" {
		id, err := uuid.Parse(r.TargetDocumentID)
		if err != nil {
			return nil, fmt.Errorf("%w: target document %q", shared.ErrInvalidInput, r.TargetDocumentID)
		}
		s.TargetDocumentID = &id
	}
	return s, nil
}

// StatementSide is one direction of a counterparty statement
type StatementSide struct {
	Direction   finance.Direction      `json:"direction"`
	Outstanding decimal.Decimal        `json:"outstanding"`
	Advance     decimal.Decimal        `json:"advance"`
	Balance     decimal.Decimal        `json:"balance"`
	Open        []finance.DebtDocument `json:"open_documents"`
}

// CounterpartyStatement lists what a counterparty owes or is owed
type CounterpartyStatement struct {
	CounterpartyID string               `json:"counterparty_id"`
	Sides          []StatementSide      `json:"sides"`
	Settlements    []finance.Settlement `json:"settlements"`
}
