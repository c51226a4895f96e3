// Package finance keeps counterparty balances in step with the stock ledger.
// DebtService subscribes to confirmed-document events: receipts and sales
// invoices open debts, their initial payments and the credits raised by
// returns settle them.
package finance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "debt"

// Purposes of the settlements derived from documents
const (
	purposeInitialPayment = "initial-payment"
	purposeCredit         = "credit"
)

// DebtService maintains the debt ledger from confirmed documents and
// records payments
type DebtService struct {
	ledger      *finance.DebtLedger
	settlements finance.SettlementRepository
	metrics     *telemetry.LedgerMetrics
	logger      *zap.Logger

	// serializes settlement application with persistence
	mu      sync.Mutex
	pending []*finance.Settlement
}

// NewDebtService creates a debt service over ledger
func NewDebtService(ledger *finance.DebtLedger, settlements finance.SettlementRepository, logger *zap.Logger) *DebtService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebtService{
		ledger:      ledger,
		settlements: settlements,
		logger:      logger.Named("debt"),
	}
}

// SetMetrics sets the metrics recorder
func (s *DebtService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// EventTypes returns the event types this handler is interested in
func (s *DebtService) EventTypes() []string {
	return []string{inventory.EventTypeDocumentConfirmed}
}

// Handle registers the debts of a confirmed document and applies the
// settlements it raises. Settlements of replayed documents are held back
// until Restore has put the persisted ones in place.
func (s *DebtService) Handle(ctx context.Context, event shared.DomainEvent) error {
	confirmed, ok := event.(*inventory.DocumentConfirmedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeDocumentConfirmed, event.EventType())
	}
	if confirmed.Document == nil {
		return fmt.Errorf("%w: event %s carries no document", shared.ErrInvalidInput, event.EventID())
	}

	debts, derived := DebtsOf(confirmed.Document)
	for _, d := range debts {
		if _, err := s.ledger.RegisterDocument(d); err != nil {
			return fmt.Errorf("registering %s: %w", d.Number, err)
		}
	}
	if len(derived) == 0 {
		return nil
	}
	for _, st := range derived {
		if st.TargetDocumentID == nil {
			continue
		}
		if _, ok := s.ledger.Document(*st.TargetDocumentID); !ok {
			st.TargetDocumentID = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if confirmed.Replayed {
		s.pending = append(s.pending, derived...)
		return nil
	}
	for _, st := range derived {
		if _, err := s.applyLocked(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Restore applies the persisted settlements with their recorded
// allocations, then any settlement raised by a replayed document that was
// never persisted. Run it after the ledger has been loaded.
func (s *DebtService) Restore(ctx context.Context) error {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "restore")
	defer span.End()

	stored, err := s.settlements.FindAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("loading settlements: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range stored {
		if _, err := s.ledger.Apply(ctx, &stored[i]); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("restoring settlement %s: %w", stored[i].ID, err)
		}
	}

	recovered := 0
	for _, st := range s.pending {
		if _, ok := s.findSettled(st); ok {
			continue
		}
		if _, err := s.applyLocked(ctx, st); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		recovered++
	}
	s.pending = nil

	telemetry.SetAttributes(span, "settlements", len(stored), "recovered", recovered)
	logger.WithLogger(ctx, s.logger).Info("Debt ledger restored",
		zap.Int("settlements", len(stored)),
		zap.Int("recovered", recovered),
	)
	return nil
}

func (s *DebtService) findSettled(st *finance.Settlement) (finance.Settlement, bool) {
	for _, existing := range s.ledger.Settlements(st.CounterpartyID) {
		if existing.ID == st.ID {
			return existing, true
		}
	}
	return finance.Settlement{}, false
}

// RecordPayment allocates a payment to the counterparty's open documents,
// oldest first, and stores it
func (s *DebtService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*finance.Settlement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "record_payment",
		telemetry.WithAttribute("counterparty_id", req.CounterpartyID))
	defer span.End()

	payment, err := req.ToSettlement()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.mu.Lock()
	applied, err := s.applyLocked(ctx, payment)
	s.mu.Unlock()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordPayment(ctx, string(applied.Direction))
	telemetry.SetOK(span)
	logger.WithLogger(ctx, s.logger).Info("Payment recorded",
		zap.String("settlement_id", applied.ID.String()),
		zap.String("counterparty_id", applied.CounterpartyID),
		zap.String("direction", string(applied.Direction)),
		zap.String("amount", applied.Amount.String()),
		zap.String("unapplied", applied.Unapplied.String()),
	)
	return applied, nil
}

// applyLocked applies st and stores the result; a failed store reverts it
func (s *DebtService) applyLocked(ctx context.Context, st *finance.Settlement) (*finance.Settlement, error) {
	if existing, ok := s.findSettled(st); ok {
		return &existing, nil
	}
	applied, err := s.ledger.Apply(ctx, st)
	if err != nil {
		return nil, err
	}
	if err := s.settlements.Save(ctx, applied); err != nil {
		if rerr := s.ledger.Revert(applied.ID); rerr != nil {
			err = errors.Join(err, rerr)
		}
		logger.WithLogger(ctx, s.logger).Error("Failed to store settlement",
			zap.String("settlement_id", applied.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: settlement %s: %w", shared.ErrPersistence, applied.ID, err)
	}
	return applied, nil
}

// Outstanding returns what is still owed on open documents
func (s *DebtService) Outstanding(counterpartyID string, direction finance.Direction) decimal.Decimal {
	return s.ledger.Outstanding(counterpartyID, direction)
}

// Statement summarizes a counterparty in both directions
func (s *DebtService) Statement(counterpartyID string) *CounterpartyStatement {
	st := &CounterpartyStatement{CounterpartyID: counterpartyID}
	for _, dir := range []finance.Direction{finance.DirectionPayable, finance.DirectionReceivable} {
		side := StatementSide{
			Direction:   dir,
			Outstanding: s.ledger.Outstanding(counterpartyID, dir),
			Advance:     s.ledger.Advance(counterpartyID, dir),
			Open:        s.ledger.OpenDocuments(counterpartyID, dir),
		}
		side.Balance = side.Outstanding.Sub(side.Advance)
		st.Sides = append(st.Sides, side)
	}
	st.Settlements = s.ledger.Settlements(counterpartyID)
	return st
}

// Document returns the debt opened by a ledger document
func (s *DebtService) Document(id uuid.UUID) (finance.DebtDocument, error) {
	d, ok := s.ledger.Document(id)
	if !ok {
		return finance.DebtDocument{}, fmt.Errorf("%w: debt document %s", shared.ErrNotFound, id)
	}
	return d, nil
}
