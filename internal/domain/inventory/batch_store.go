package inventory

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BatchLocator finds the stock key a batch currently lives under
type BatchLocator interface {
	Locate(batchID string) (StockKey, bool)
}

// BatchStore holds the live batches of every item and warehouse.
// Batches of one key are kept in FIFO order (receipt date, then sequence).
// Mutations go through a StockTx so a failing document leaves no trace.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[StockKey][]StockBatch
	locator map[string]StockKey
	seq     atomic.Int64
}

// NewBatchStore creates an empty store
func NewBatchStore() *BatchStore {
	return &BatchStore{
		batches: make(map[StockKey][]StockBatch),
		locator: make(map[string]StockKey),
	}
}

// NewBatchStoreFrom builds a store holding exactly the given batches,
// keeping their sequences.
func NewBatchStoreFrom(batches []StockBatch) *BatchStore {
	s := NewBatchStore()
	var maxSeq int64
	for _, b := range batches {
		key := b.Key()
		s.batches[key] = append(s.batches[key], b)
		s.locator[b.ID] = key
		if b.Sequence > maxSeq {
			maxSeq = b.Sequence
		}
	}
	for _, list := range s.batches {
		sortFIFO(list)
	}
	s.seq.Store(maxSeq)
	return s
}

// Batches returns a copy of the batches under key in FIFO order
func (s *BatchStore) Batches(key StockKey) []StockBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBatches(s.batches[key])
}

// OnHand returns the total quantity under key
func (s *BatchStore) OnHand(key StockKey) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumQuantity(s.batches[key])
}

// Locate returns the key holding the batch
func (s *BatchStore) Locate(batchID string) (StockKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.locator[batchID]
	return key, ok
}

// FindBatch returns a batch by id
func (s *BatchStore) FindBatch(batchID string) (StockBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(batchID)
}

func (s *BatchStore) findLocked(batchID string) (StockBatch, bool) {
	key, ok := s.locator[batchID]
	if !ok {
		return StockBatch{}, false
	}
	for _, b := range s.batches[key] {
		if b.ID == batchID {
			return b, true
		}
	}
	return StockBatch{}, false
}

// Keys returns every key that holds at least one batch, sorted
func (s *BatchStore) Keys() []StockKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]StockKey, 0, len(s.batches))
	for k := range s.batches {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// All returns every batch, grouped by sorted key and FIFO order within a key
func (s *BatchStore) All() []StockBatch {
	keys := s.Keys()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StockBatch, 0, len(s.locator))
	for _, k := range keys {
		out = append(out, s.batches[k]...)
	}
	return out
}

// Clone returns an independent deep copy
func (s *BatchStore) Clone() *BatchStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := NewBatchStore()
	for k, list := range s.batches {
		c.batches[k] = copyBatches(list)
	}
	for id, k := range s.locator {
		c.locator[id] = k
	}
	c.seq.Store(s.seq.Load())
	return c
}

// ReplaceWith swaps the contents of s for a copy of other
func (s *BatchStore) ReplaceWith(other *BatchStore) {
	fresh := other.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = fresh.batches
	s.locator = fresh.locator
	if next := fresh.seq.Load(); next > s.seq.Load() {
		s.seq.Store(next)
	}
}

// Diff returns the keys whose batches differ between s and other.
// Insertion sequences are ignored.
func (s *BatchStore) Diff(other *BatchStore) []StockKey {
	a := s.Clone()
	b := other.Clone()

	seen := make(map[StockKey]struct{})
	var diff []StockKey
	check := func(k StockKey) {
		if _, done := seen[k]; done {
			return
		}
		seen[k] = struct{}{}
		if !sameBatches(a.batches[k], b.batches[k]) {
			diff = append(diff, k)
		}
	}
	for k := range a.batches {
		check(k)
	}
	for k := range b.batches {
		check(k)
	}
	sortKeys(diff)
	return diff
}

// Equal reports whether both stores hold the same batches
func (s *BatchStore) Equal(other *BatchStore) bool {
	return len(s.Diff(other)) == 0
}

// Begin opens a transaction over the store
func (s *BatchStore) Begin() *StockTx {
	return &StockTx{
		store:   s,
		overlay: make(map[StockKey][]StockBatch),
	}
}

// StockTx buffers batch mutations until Commit. Reads fall through to the
// store for keys the transaction has not touched. Callers must hold the
// locks of every key they touch for the lifetime of the transaction.
type StockTx struct {
	store   *BatchStore
	overlay map[StockKey][]StockBatch
}

// Batches returns the batches under key as seen by the transaction
func (tx *StockTx) Batches(key StockKey) []StockBatch {
	if list, ok := tx.overlay[key]; ok {
		return copyBatches(list)
	}
	return tx.store.Batches(key)
}

// OnHand returns the quantity under key as seen by the transaction
func (tx *StockTx) OnHand(key StockKey) decimal.Decimal {
	if list, ok := tx.overlay[key]; ok {
		return sumQuantity(list)
	}
	return tx.store.OnHand(key)
}

// Locate returns the key holding the batch as seen by the transaction
func (tx *StockTx) Locate(batchID string) (StockKey, bool) {
	for k, list := range tx.overlay {
		for _, b := range list {
			if b.ID == batchID {
				return k, true
			}
		}
	}
	k, ok := tx.store.Locate(batchID)
	if !ok {
		return StockKey{}, false
	}
	if _, touched := tx.overlay[k]; touched {
		return StockKey{}, false
	}
	return k, true
}

// FindBatch returns a batch by id as seen by the transaction
func (tx *StockTx) FindBatch(batchID string) (StockBatch, bool) {
	k, ok := tx.Locate(batchID)
	if !ok {
		return StockBatch{}, false
	}
	for _, b := range tx.Batches(k) {
		if b.ID == batchID {
			return b, true
		}
	}
	return StockBatch{}, false
}

// AddBatch inserts a new batch and assigns its sequence
func (tx *StockTx) AddBatch(b StockBatch) error {
	if err := b.Item.Validate(); err != nil {
		return err
	}
	if b.WarehouseID == "" {
		return fmt.Errorf("%w: batch %s has no warehouse", shared.ErrInvalidInput, b.ID)
	}
	if !b.Quantity.IsPositive() {
		return fmt.Errorf("%w: batch %s quantity must be positive", shared.ErrInvalidInput, b.ID)
	}
	if b.UnitCost.IsNegative() {
		return fmt.Errorf("%w: batch %s unit cost must not be negative", shared.ErrInvalidInput, b.ID)
	}
	if _, exists := tx.Locate(b.ID); exists {
		return fmt.Errorf("%w: batch %s", shared.ErrAlreadyExists, b.ID)
	}

	b.Sequence = tx.store.seq.Add(1)
	key := b.Key()
	list := append(tx.Batches(key), b)
	sortFIFO(list)
	tx.overlay[key] = list
	return nil
}

// UpdateBatch replaces an existing batch with the same id
func (tx *StockTx) UpdateBatch(b StockBatch) error {
	key, ok := tx.Locate(b.ID)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrUnknownBatch, b.ID)
	}
	list := tx.Batches(key)
	for i := range list {
		if list[i].ID == b.ID {
			b.Sequence = list[i].Sequence
			list[i] = b
		}
	}
	tx.overlay[key] = list
	return nil
}

// SetBatches replaces every batch under key. Depleted batches are dropped.
func (tx *StockTx) SetBatches(key StockKey, batches []StockBatch) {
	kept := make([]StockBatch, 0, len(batches))
	for _, b := range batches {
		if !b.IsDepleted() {
			kept = append(kept, b)
		}
	}
	sortFIFO(kept)
	tx.overlay[key] = kept
}

// TouchedKeys returns the keys written by the transaction, sorted
func (tx *StockTx) TouchedKeys() []StockKey {
	keys := make([]StockKey, 0, len(tx.overlay))
	for k := range tx.overlay {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Commit publishes the buffered changes to the store
func (tx *StockTx) Commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, list := range tx.overlay {
		for _, old := range s.batches[key] {
			delete(s.locator, old.ID)
		}
		if len(list) == 0 {
			delete(s.batches, key)
			continue
		}
		s.batches[key] = list
		for _, b := range list {
			s.locator[b.ID] = key
		}
	}
	tx.overlay = make(map[StockKey][]StockBatch)
}

func copyBatches(list []StockBatch) []StockBatch {
	if len(list) == 0 {
		return nil
	}
	out := make([]StockBatch, len(list))
	copy(out, list)
	return out
}

func sumQuantity(list []StockBatch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range list {
		total = total.Add(b.Quantity)
	}
	return total
}

func sortFIFO(list []StockBatch) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].ReceiptDate.Equal(list[j].ReceiptDate) {
			return list[i].ReceiptDate.Before(list[j].ReceiptDate)
		}
		return list[i].Sequence < list[j].Sequence
	})
}

func sortKeys(keys []StockKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}

func sameBatches(a, b []StockBatch) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].sameState(b[i]) {
			return false
		}
	}
	return true
}
