package finance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type partyKey struct {
	counterpartyID string
	direction      Direction
}

// DebtLedger tracks what is owed per counterparty and settles debts oldest
// document first. It is safe for concurrent use.
type DebtLedger struct {
	mu        sync.RWMutex
	allocator strategy.PaymentAllocationStrategy
	documents map[uuid.UUID]*DebtDocument
	order     []uuid.UUID
	settled   map[uuid.UUID]*Settlement
	history   []uuid.UUID
	advances  map[partyKey]decimal.Decimal
}

// NewDebtLedger creates an empty ledger
func NewDebtLedger(allocator strategy.PaymentAllocationStrategy) *DebtLedger {
	return &DebtLedger{
		allocator: allocator,
		documents: make(map[uuid.UUID]*DebtDocument),
		settled:   make(map[uuid.UUID]*Settlement),
		advances:  make(map[partyKey]decimal.Decimal),
	}
}

// RegisterDocument records a new debt. Registering the same document twice
// is a no-op and reports false.
func (l *DebtLedger) RegisterDocument(doc DebtDocument) (bool, error) {
	if err := doc.validate(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.documents[doc.DocumentID]; exists {
		return false, nil
	}
	doc.Settled = decimal.Zero
	l.documents[doc.DocumentID] = &doc
	l.order = append(l.order, doc.DocumentID)
	return true, nil
}

// Apply settles debts with s. With recorded allocations (a reload) they are
// applied verbatim; otherwise the target document is paid first and the rest
// goes to open documents oldest first. Whatever cannot be placed stays as an
// advance. Applying the same settlement id twice is a no-op.
func (l *DebtLedger) Apply(ctx context.Context, s *Settlement) (*Settlement, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.settled[s.ID]; ok {
		c := existing.clone()
		return &c, nil
	}

	applied := s.clone()
	if len(s.Allocations) > 0 {
		if err := l.restoreLocked(&applied); err != nil {
			return nil, err
		}
	} else {
		if err := l.allocateLocked(ctx, &applied); err != nil {
			return nil, err
		}
	}

	pk := partyKey{applied.CounterpartyID, applied.Direction}
	if applied.Unapplied.IsPositive() {
		l.advances[pk] = l.advances[pk].Add(applied.Unapplied)
	}
	l.settled[applied.ID] = &applied
	l.history = append(l.history, applied.ID)

	out := applied.clone()
	return &out, nil
}

// Revert undoes an applied settlement: its allocations are taken back from
// the documents and its unapplied part from the advance.
func (l *DebtLedger) Revert(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.settled[id]
	if !ok {
		return fmt.Errorf("%w: settlement %s", shared.ErrNotFound, id)
	}
	for _, a := range s.Allocations {
		if doc, ok := l.documents[a.DocumentID]; ok {
			doc.Settled = doc.Settled.Sub(a.Amount)
		}
	}
	if s.Unapplied.IsPositive() {
		pk := partyKey{s.CounterpartyID, s.Direction}
		l.advances[pk] = l.advances[pk].Sub(s.Unapplied)
	}
	delete(l.settled, id)
	for i, h := range l.history {
		if h == id {
			l.history = append(l.history[:i], l.history[i+1:]...)
			break
		}
	}
	return nil
}

func (l *DebtLedger) restoreLocked(s *Settlement) error {
	total := decimal.Zero
	for _, a := range s.Allocations {
		doc, ok := l.documents[a.DocumentID]
		if !ok {
			return fmt.Errorf("%w: settlement %s references unknown document %s", shared.ErrNotFound, s.ID, a.DocumentID)
		}
		if a.Amount.GreaterThan(doc.Outstanding()) {
			return fmt.Errorf("%w: settlement %s over-allocates %s", shared.ErrInvalidState, s.ID, doc.Number)
		}
		total = total.Add(a.Amount)
	}
	if total.GreaterThan(s.Amount) {
		return fmt.Errorf("%w: settlement %s allocates more than its amount", shared.ErrInvalidState, s.ID)
	}
	for _, a := range s.Allocations {
		doc := l.documents[a.DocumentID]
		doc.Settled = doc.Settled.Add(a.Amount)
	}
	s.Unapplied = s.Amount.Sub(total)
	return nil
}

func (l *DebtLedger) allocateLocked(ctx context.Context, s *Settlement) error {
	remaining := s.Amount
	s.Allocations = nil

	if s.TargetDocumentID != nil {
		doc, ok := l.documents[*s.TargetDocumentID]
		if !ok {
			return fmt.Errorf("%w: debt document %s", shared.ErrNotFound, *s.TargetDocumentID)
		}
		if doc.CounterpartyID != s.CounterpartyID || doc.Direction != s.Direction {
			return fmt.Errorf("%w: document %s belongs to another counterparty", shared.ErrInvalidInput, doc.Number)
		}
		amount := decimal.Min(remaining, doc.Outstanding())
		if amount.IsPositive() {
			doc.Settled = doc.Settled.Add(amount)
			s.Allocations = append(s.Allocations, SettlementAllocation{DocumentID: doc.DocumentID, Number: doc.Number, Amount: amount})
			remaining = remaining.Sub(amount)
		}
	}

	if remaining.IsPositive() {
		open := l.openLocked(s.CounterpartyID, s.Direction)
		debts := make([]strategy.OpenDebt, 0, len(open))
		for _, d := range open {
			debts = append(debts, strategy.OpenDebt{
				ID:          d.DocumentID.String(),
				Number:      d.Number,
				Date:        d.Date,
				Outstanding: d.Outstanding(),
			})
		}
		result, err := l.allocator.Allocate(ctx, strategy.AllocationContext{
			CounterpartyID: s.CounterpartyID,
			Amount:         remaining,
			Date:           s.Date,
		}, debts)
		if err != nil {
			return err
		}
		for _, a := range result.Allocations {
			id, err := uuid.Parse(a.DebtID)
			if err != nil {
				return err
			}
			doc := l.documents[id]
			doc.Settled = doc.Settled.Add(a.Amount)
			s.Allocations = append(s.Allocations, SettlementAllocation{DocumentID: id, Number: doc.Number, Amount: a.Amount})
		}
		remaining = result.Remaining
	}

	s.Unapplied = remaining
	return nil
}

// openLocked returns open documents in registration order
func (l *DebtLedger) openLocked(counterpartyID string, direction Direction) []DebtDocument {
	out := make([]DebtDocument, 0)
	for _, id := range l.order {
		d := l.documents[id]
		if d.CounterpartyID == counterpartyID && d.Direction == direction && !d.IsSettled() {
			out = append(out, *d)
		}
	}
	return out
}

// Document returns a debt document by id
func (l *DebtLedger) Document(id uuid.UUID) (DebtDocument, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.documents[id]
	if !ok {
		return DebtDocument{}, false
	}
	return *d, true
}

// OpenDocuments lists unsettled documents of a counterparty, oldest first
func (l *DebtLedger) OpenDocuments(counterpartyID string, direction Direction) []DebtDocument {
	l.mu.RLock()
	defer l.mu.RUnlock()
	open := l.openLocked(counterpartyID, direction)
	sort.SliceStable(open, func(i, j int) bool { return open[i].Date.Before(open[j].Date) })
	return open
}

// Outstanding returns the total unsettled amount of a counterparty
func (l *DebtLedger) Outstanding(counterpartyID string, direction Direction) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, d := range l.openLocked(counterpartyID, direction) {
		total = total.Add(d.Outstanding())
	}
	return total
}

// Advance returns settlements that could not be placed on any document
func (l *DebtLedger) Advance(counterpartyID string, direction Direction) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.advances[partyKey{counterpartyID, direction}].Add(decimal.Zero)
}

// Balance returns outstanding minus advance; negative means we hold a credit
func (l *DebtLedger) Balance(counterpartyID string, direction Direction) decimal.Decimal {
	return l.Outstanding(counterpartyID, direction).Sub(l.Advance(counterpartyID, direction))
}

// Settlements lists applied settlements of a counterparty in application order
func (l *DebtLedger) Settlements(counterpartyID string) []Settlement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Settlement, 0)
	for _, id := range l.history {
		s := l.settled[id]
		if counterpartyID == "" || s.CounterpartyID == counterpartyID {
			out = append(out, s.clone())
		}
	}
	return out
}
