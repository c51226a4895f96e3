package inventory

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeDocumentConfirmed = "ledger.document.confirmed"
	EventTypeStockRebuilt      = "ledger.stock.rebuilt"
)

// DocumentConfirmedEvent is raised when a document takes effect. Replayed
// is set when the event is re-emitted while loading history.
type DocumentConfirmedEvent struct {
	shared.BaseDomainEvent
	DocumentID uuid.UUID    `json:"document_id"`
	Kind       DocumentKind `json:"kind"`
	Number     string       `json:"number"`
	Replayed   bool         `json:"replayed"`
	Document   Document     `json:"-"`
}

// NewDocumentConfirmedEvent creates a DocumentConfirmedEvent carrying a copy of doc
func NewDocumentConfirmedEvent(doc Document, replayed bool) *DocumentConfirmedEvent {
	h := doc.Head()
	return &DocumentConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentConfirmed, AggregateTypeDocument, h.ID),
		DocumentID:      h.ID,
		Kind:            doc.Kind(),
		Number:          h.Number,
		Replayed:        replayed,
		Document:        doc.Clone(),
	}
}

// StockRebuiltEvent is raised after a backdated document forced a replay
type StockRebuiltEvent struct {
	shared.BaseDomainEvent
	TriggerDocumentID uuid.UUID `json:"trigger_document_id"`
	ChangedKeys       int       `json:"changed_keys"`
}

// NewStockRebuiltEvent creates a StockRebuiltEvent
func NewStockRebuiltEvent(trigger uuid.UUID, changedKeys int) *StockRebuiltEvent {
	return &StockRebuiltEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeStockRebuilt, AggregateTypeDocument, trigger),
		TriggerDocumentID: trigger,
		ChangedKeys:       changedKeys,
	}
}
