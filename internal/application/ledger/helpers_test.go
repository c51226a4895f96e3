package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/lock"
	"github.com/erp/stockledger/internal/infrastructure/masterdata"
	"github.com/erp/stockledger/internal/infrastructure/strategy/batch"
	"github.com/erp/stockledger/internal/infrastructure/strategy/cost"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testMasterData = `
warehouses:
  - {id: W1, name: Kitchen}
  - {id: W2, name: Store}
products:
  - {id: flour, name: Flour, unit: kg}
  - {id: sugar, name: Sugar, unit: kg}
dishes:
  - id: pancake
    name: Pancake
    recipe:
      yield: "1"
      components:
        - {item: "product:flour", gross: "2"}
  - id: crepe
    name: Crepe
    recipe:
      yield: "1"
      components:
        - {item: "product:flour", gross: "1"}
counterparties:
  - {id: mill, name: Mill, role: supplier}
  - {id: cafe, name: Cafe, role: client}
`

var (
	flour   = inventory.ProductRef("flour")
	sugar   = inventory.ProductRef("sugar")
	pancake = inventory.DishRef("pancake")
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{events: make([]shared.DomainEvent, 0)}
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// memoryDocumentRepository keeps copies of documents in memory. Like the
// database it hands out confirm sequences and numbers under one lock, so
// several services can share it.
type memoryDocumentRepository struct {
	mu         sync.Mutex
	docs       map[uuid.UUID]inventory.Document
	seq        int64
	numbers    map[inventory.DocumentKind]int
	saveAllErr error
}

func newMemoryDocumentRepository() *memoryDocumentRepository {
	return &memoryDocumentRepository{
		docs:    make(map[uuid.UUID]inventory.Document),
		numbers: make(map[inventory.DocumentKind]int),
	}
}

func (r *memoryDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (inventory.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", shared.ErrNotFound, id)
	}
	return d.Clone(), nil
}

func (r *memoryDocumentRepository) FindAll(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.Document, 0, len(r.docs))
	for _, d := range r.docs {
		if filter.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Head(), out[j].Head()
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Number < b.Number
	})
	return out, nil
}

func (r *memoryDocumentRepository) FindConfirmed(ctx context.Context) ([]inventory.Document, error) {
	docs, err := r.FindAll(ctx, inventory.DocumentFilter{Status: inventory.StatusConfirmed})
	if err != nil {
		return nil, err
	}
	return inventory.SortForReplay(docs), nil
}

func (r *memoryDocumentRepository) FindConfirmedAfter(ctx context.Context, seq int64) ([]inventory.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []inventory.Document
	for _, d := range r.docs {
		if h := d.Head(); h.IsConfirmed() && h.ConfirmSeq > seq {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Head().ConfirmSeq < out[j].Head().ConfirmSeq })
	return out, nil
}

func (r *memoryDocumentRepository) LatestConfirmSeq(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq, nil
}

func (r *memoryDocumentRepository) NextNumber(ctx context.Context, kind inventory.DocumentKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers[kind]++
	return kind.FormatNumber(r.numbers[kind]), nil
}

func (r *memoryDocumentRepository) Save(ctx context.Context, doc inventory.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observe(doc)
	r.docs[doc.Head().ID] = doc.Clone()
	return nil
}

func (r *memoryDocumentRepository) observe(doc inventory.Document) {
	if n, ok := doc.Kind().ParseNumber(doc.Head().Number); ok && !doc.Head().IsConfirmed() && n > r.numbers[doc.Kind()] {
		r.numbers[doc.Kind()] = n
	}
}

func (r *memoryDocumentRepository) SaveAll(ctx context.Context, docs []inventory.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveAllErr != nil {
		return r.saveAllErr
	}
	for _, d := range docs {
		if h := d.Head(); h.IsConfirmed() && h.ConfirmSeq == 0 {
			r.seq++
			h.ConfirmSeq = r.seq
		}
		r.observe(d)
		r.docs[d.Head().ID] = d.Clone()
	}
	return nil
}

func (r *memoryDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return fmt.Errorf("%w: document %s", shared.ErrNotFound, id)
	}
	delete(r.docs, id)
	return nil
}

func (r *memoryDocumentRepository) failSaveAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveAllErr = err
}

// memorySnapshotRepository keeps the last stored snapshot
type memorySnapshotRepository struct {
	mu      sync.Mutex
	batches map[inventory.StockKey][]inventory.StockBatch
}

func newMemorySnapshotRepository() *memorySnapshotRepository {
	return &memorySnapshotRepository{batches: make(map[inventory.StockKey][]inventory.StockBatch)}
}

func (r *memorySnapshotRepository) ReplaceKeys(ctx context.Context, keys []inventory.StockKey, batches []inventory.StockBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.batches, k)
	}
	for _, b := range batches {
		r.batches[b.Key()] = append(r.batches[b.Key()], b)
	}
	return nil
}

func (r *memorySnapshotRepository) ReplaceAll(ctx context.Context, batches []inventory.StockBatch) error {
	r.mu.Lock()
	r.batches = make(map[inventory.StockKey][]inventory.StockBatch)
	r.mu.Unlock()
	return r.ReplaceKeys(ctx, nil, batches)
}

func (r *memorySnapshotRepository) LoadAll(ctx context.Context) ([]inventory.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []inventory.StockBatch
	for _, list := range r.batches {
		out = append(out, list...)
	}
	return out, nil
}

type testLedger struct {
	svc       *LedgerService
	docs      *memoryDocumentRepository
	snapshots *memorySnapshotRepository
	events    *MockEventPublisher
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	return newTestLedgerOn(t, newMemoryDocumentRepository(), newMemorySnapshotRepository())
}

func newTestLedgerOn(t *testing.T, docs *memoryDocumentRepository, snapshots *memorySnapshotRepository) *testLedger {
	t.Helper()
	return newTestLedgerWith(t, docs, snapshots, lock.NewMemoryKeyLocker())
}

// newTestLedgerWith builds a service sharing storage and locks with others,
// the way separate processes share a database and a redis
func newTestLedgerWith(t *testing.T, docs *memoryDocumentRepository, snapshots *memorySnapshotRepository, locker shared.KeyLocker) *testLedger {
	t.Helper()
	registry, err := masterdata.Load([]byte(testMasterData))
	require.NoError(t, err)

	engine := inventory.NewConsumptionEngine(batch.NewFIFOBatchStrategy(), cost.NewFIFOCostStrategy())
	svc := NewLedgerService(docs, registry, engine, locker)
	svc.SetSnapshotRepository(snapshots)
	svc.SetTimeouts(time.Second, 5*time.Second)
	events := NewMockEventPublisher()
	svc.SetEventPublisher(events)
	return &testLedger{svc: svc, docs: docs, snapshots: snapshots, events: events}
}

func (l *testLedger) create(t *testing.T, doc inventory.Document) inventory.Document {
	t.Helper()
	require.NoError(t, l.svc.CreateDraft(context.Background(), doc))
	return doc
}

func (l *testLedger) confirm(t *testing.T, doc inventory.Document) inventory.Document {
	t.Helper()
	l.create(t, doc)
	require.NoError(t, l.svc.Confirm(context.Background(), doc.Head().ID))
	stored, err := l.docs.FindByID(context.Background(), doc.Head().ID)
	require.NoError(t, err)
	return stored
}

func (l *testLedger) receive(t *testing.T, date time.Time, warehouseID string, item inventory.ItemRef, qty, price string) *inventory.GoodsReceipt {
	t.Helper()
	gr := inventory.NewGoodsReceipt(date, "mill", warehouseID)
	require.NoError(t, gr.AddLine(item, dec(qty), dec(price), nil))
	return l.confirm(t, gr).(*inventory.GoodsReceipt)
}

func writeOff(t *testing.T, date time.Time, item inventory.ItemRef, qty string) *inventory.WriteOff {
	t.Helper()
	wo := inventory.NewWriteOff(date, "W1", "spoiled")
	require.NoError(t, wo.AddLine(item, dec(qty)))
	return wo
}
