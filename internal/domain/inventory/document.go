package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeDocument is the aggregate type of ledger documents
const AggregateTypeDocument = "LedgerDocument"

// DocumentKind identifies the document type
type DocumentKind string

const (
	KindGoodsReceipt     DocumentKind = "GOODS_RECEIPT"
	KindWriteOff         DocumentKind = "WRITE_OFF"
	KindGoodsReturn      DocumentKind = "GOODS_RETURN"
	KindInternalTransfer DocumentKind = "INTERNAL_TRANSFER"
	KindPriceAdjustment  DocumentKind = "PRICE_ADJUSTMENT"
	KindProductionNote   DocumentKind = "PRODUCTION_NOTE"
	KindSalesInvoice     DocumentKind = "SALES_INVOICE"
	KindSalesReturn      DocumentKind = "SALES_RETURN"
	KindInventoryCount   DocumentKind = "INVENTORY_COUNT"
)

var numberPrefixes = map[DocumentKind]string{
	KindGoodsReceipt:     "GR",
	KindWriteOff:         "WO",
	KindGoodsReturn:      "RT",
	KindInternalTransfer: "TR",
	KindPriceAdjustment:  "PA",
	KindProductionNote:   "PN",
	KindSalesInvoice:     "SI",
	KindSalesReturn:      "SR",
	KindInventoryCount:   "IC",
}

// AllDocumentKinds returns all document kinds
func AllDocumentKinds() []DocumentKind {
	return []DocumentKind{
		KindGoodsReceipt,
		KindWriteOff,
		KindGoodsReturn,
		KindInternalTransfer,
		KindPriceAdjustment,
		KindProductionNote,
		KindSalesInvoice,
		KindSalesReturn,
		KindInventoryCount,
	}
}

// IsValid returns true if the kind is known
func (k DocumentKind) IsValid() bool {
	_, ok := numberPrefixes[k]
	return ok
}

// String returns the string representation
func (k DocumentKind) String() string {
	return string(k)
}

// FormatNumber renders the n-th document number of this kind, e.g. GR-000007
func (k DocumentKind) FormatNumber(n int) string {
	return fmt.Sprintf("%s-%06d", numberPrefixes[k], n)
}

// ParseNumber extracts the sequence part of a number produced by FormatNumber
func (k DocumentKind) ParseNumber(number string) (int, bool) {
	prefix := numberPrefixes[k] + "-"
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(number, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// DocumentStatus represents the lifecycle state of a document
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "DRAFT"
	StatusConfirmed DocumentStatus = "CONFIRMED"
)

// IsValid returns true if the status is known
func (s DocumentStatus) IsValid() bool {
	return s == StatusDraft || s == StatusConfirmed
}

// DocumentHeader holds the fields every document shares
type DocumentHeader struct {
	shared.BaseAggregateRoot
	Number      string         `json:"number"`
	Date        time.Time      `json:"date"`
	Status      DocumentStatus `json:"status"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
	// ConfirmSeq orders documents sharing a date during replay
	ConfirmSeq int64  `json:"confirm_seq,omitempty"`
	Note       string `json:"note,omitempty"`
	// SourceDocumentID links documents generated by another one (inventory counts)
	SourceDocumentID *uuid.UUID `json:"source_document_id,omitempty"`
}

func newDocumentHeader(date time.Time) DocumentHeader {
	return DocumentHeader{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Date:              date,
		Status:            StatusDraft,
	}
}

// Head returns the header; promoted to every document type
func (h *DocumentHeader) Head() *DocumentHeader {
	return h
}

// IsConfirmed returns true once the document has been confirmed
func (h *DocumentHeader) IsConfirmed() bool {
	return h.Status == StatusConfirmed
}

// EnsureDraft returns ErrImmutableDocument for confirmed documents
func (h *DocumentHeader) EnsureDraft() error {
	if h.IsConfirmed() {
		return fmt.Errorf("%w: %s", shared.ErrImmutableDocument, h.label())
	}
	return nil
}

// MarkConfirmed moves the document to CONFIRMED
func (h *DocumentHeader) MarkConfirmed(seq int64, at time.Time) error {
	if err := h.EnsureDraft(); err != nil {
		return err
	}
	h.Status = StatusConfirmed
	h.ConfirmSeq = seq
	h.ConfirmedAt = &at
	h.UpdatedAt = at
	h.IncrementVersion()
	return nil
}

func (h *DocumentHeader) validateHeader() error {
	if h.ID == uuid.Nil {
		return fmt.Errorf("%w: document id is required", shared.ErrInvalidInput)
	}
	if h.Date.IsZero() {
		return fmt.Errorf("%w: document date is required", shared.ErrInvalidInput)
	}
	return nil
}

func (h *DocumentHeader) label() string {
	if h.Number != "" {
		return h.Number
	}
	return h.ID.String()
}

// KeyEnv resolves the stock keys a document will touch before it is applied
type KeyEnv struct {
	Batches BatchLocator
	Recipes RecipeBook
}

// EffectEnv carries what an effector needs besides the transaction.
// Recipes may be nil when replaying confirmed documents.
type EffectEnv struct {
	Engine  *ConsumptionEngine
	Recipes RecipeBook
}

// Movement is a signed quantity change on one stock key
type Movement struct {
	Key      StockKey        `json:"key"`
	Delta    decimal.Decimal `json:"delta"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Effect is what applying a document did to stock
type Effect struct {
	DocumentID uuid.UUID
	Movements  []Movement
}

func newEffect(id uuid.UUID) *Effect {
	return &Effect{DocumentID: id}
}

func (e *Effect) add(key StockKey, delta, unitCost decimal.Decimal) {
	e.Movements = append(e.Movements, Movement{Key: key, Delta: delta, UnitCost: unitCost})
}

// NetFor returns the total delta applied to key
func (e *Effect) NetFor(key StockKey) decimal.Decimal {
	total := decimal.Zero
	for _, m := range e.Movements {
		if m.Key == key {
			total = total.Add(m.Delta)
		}
	}
	return total
}

// StockEffector applies a document's stock effect inside a transaction.
// Implementations record realized costs on the receiver and must leave the
// transaction unusable (caller discards it) when they return an error.
type StockEffector interface {
	ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error)
}

// Document is the closed set of ledger documents
type Document interface {
	StockEffector
	Head() *DocumentHeader
	Kind() DocumentKind
	// Validate checks the draft is well formed
	Validate() error
	// StockKeys lists every key the document will touch
	StockKeys(env KeyEnv) ([]StockKey, error)
	// Clone returns a deep copy
	Clone() Document
	sealed()
}

// NewDocument returns an empty document of the given kind, for decoding
func NewDocument(kind DocumentKind) (Document, error) {
	switch kind {
	case KindGoodsReceipt:
		return &GoodsReceipt{}, nil
	case KindWriteOff:
		return &WriteOff{}, nil
	case KindGoodsReturn:
		return &GoodsReturn{}, nil
	case KindInternalTransfer:
		return &InternalTransfer{}, nil
	case KindPriceAdjustment:
		return &PriceAdjustment{}, nil
	case KindProductionNote:
		return &ProductionNote{}, nil
	case KindSalesInvoice:
		return &SalesInvoice{}, nil
	case KindSalesReturn:
		return &SalesReturn{}, nil
	case KindInventoryCount:
		return &InventoryCount{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown document kind %q", shared.ErrInvalidInput, kind)
	}
}

// ConsumptionLine is a document line that draws stock FIFO and records the
// realized cost once applied.
type ConsumptionLine struct {
	Item      ItemRef           `json:"item"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UnitCost  decimal.Decimal   `json:"unit_cost"`
	TotalCost decimal.Decimal   `json:"total_cost"`
	Portions  []ConsumedPortion `json:"portions,omitempty"`
}

func (l *ConsumptionLine) record(c *Consumption) {
	l.UnitCost = c.UnitCost
	l.TotalCost = c.TotalCost
	l.Portions = c.Portions
}

func (l ConsumptionLine) clone() ConsumptionLine {
	l.Portions = append([]ConsumedPortion(nil), l.Portions...)
	return l
}

func validateLineItem(i int, item ItemRef, qty decimal.Decimal) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", i+1, err)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrInvalidInput, i+1)
	}
	return nil
}

func requireField(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", shared.ErrInvalidInput, field)
	}
	return nil
}

func requireLines(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: document has no lines", shared.ErrInvalidInput)
	}
	return nil
}

// consumeLines draws every line from warehouseID in order
func consumeLines(ctx context.Context, tx *StockTx, env EffectEnv, eff *Effect, warehouseID string, date time.Time, lines []ConsumptionLine) error {
	for i := range lines {
		key := NewStockKey(lines[i].Item, warehouseID)
		c, err := env.Engine.Consume(ctx, tx, key, lines[i].Quantity, date)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		lines[i].record(c)
		eff.add(key, lines[i].Quantity.Neg(), c.UnitCost)
	}
	return nil
}

func lineKeys(warehouseID string, items ...ItemRef) []StockKey {
	seen := make(map[StockKey]struct{}, len(items))
	keys := make([]StockKey, 0, len(items))
	for _, it := range items {
		k := NewStockKey(it, warehouseID)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneHeader(h DocumentHeader) DocumentHeader {
	c := h
	c.ConfirmedAt = cloneTime(h.ConfirmedAt)
	c.SourceDocumentID = cloneUUID(h.SourceDocumentID)
	c.ClearDomainEvents()
	return c
}
