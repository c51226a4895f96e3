package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confirm applies a draft document to the live store and marks it
// confirmed. Confirming an already confirmed document is a no-op. When
// Confirm returns an error the store and the repository are unchanged.
//
// A document dated before the newest applied document is confirmed by
// rebuilding the whole store from history; the rebuild is rejected with
// shared.ErrBackdatedConflict when later documents no longer fit.
func (s *LedgerService) Confirm(ctx context.Context, id uuid.UUID) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "confirm",
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, id.String()))
	defer span.End()
	ctx = logger.WithOperation(ctx, "confirm")
	ctx = logger.WithDocumentID(ctx, id.String())
	log := logger.WithLogger(ctx, s.logger)

	start := time.Now()
	kind := ""
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
			s.metrics.RecordRejected(ctx, kind, shared.ErrorCode(err))
			log.Warn("Confirmation rejected", zap.String("kind", kind), zap.Error(err))
		}
	}()

	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	kind = doc.Kind().String()
	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentKind, doc.Kind())
	if doc.Head().IsConfirmed() {
		return nil
	}

	if err := s.Refresh(ctx); err != nil {
		return err
	}
	keys, err := s.prepare(doc)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, doc, keys)
	if err != nil {
		return err
	}
	defer func() { unlock() }()

	if doc, err = s.settle(ctx, id, keys); err != nil || doc == nil {
		return err
	}

	backdated := s.isBackdated(doc.Head().Date)
	telemetry.SetAttribute(span, telemetry.SpanAttrBackdated, backdated)
	if backdated {
		// a rebuild can move cost through any key, so take them all
		unlock()
		unlock = func() {}
		all := append(s.store.Keys(), keys...)
		held, err := s.lock(ctx, doc, all)
		if err != nil {
			return err
		}
		unlock = held
		if doc, err = s.settle(ctx, id, all); err != nil || doc == nil {
			return err
		}
		if !coveredBy(s.store.Keys(), all) {
			return fmt.Errorf("%w: stock changed while waiting to rebuild for %s",
				shared.ErrConcurrencyConflict, doc.Head().Number)
		}
	}

	var applied []inventory.Document
	if !backdated {
		s.rebuildMu.RLock()
		applied, err = s.confirmLive(ctx, doc)
		s.rebuildMu.RUnlock()
	} else {
		s.rebuildMu.Lock()
		applied, err = s.confirmBackdated(ctx, doc)
		s.rebuildMu.Unlock()
	}
	if err != nil {
		return err
	}

	s.publishDomainEvents(context.WithoutCancel(ctx), applied...)

	s.metrics.RecordConfirmed(ctx, kind, backdated, time.Since(start))
	s.metrics.RecordStockKeys(ctx, len(s.store.Keys()))
	telemetry.SetOK(span)
	for _, d := range applied {
		log.Info("Document confirmed",
			zap.String("kind", d.Kind().String()),
			zap.String("number", d.Head().Number),
			zap.Int64("confirm_seq", d.Head().ConfirmSeq),
			zap.Bool("backdated", backdated),
		)
	}
	return nil
}

// prepare validates doc and resolves the stock keys it will touch
func (s *LedgerService) prepare(doc inventory.Document) ([]inventory.StockKey, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateCounterparty(doc); err != nil {
		return nil, err
	}
	keys, err := doc.StockKeys(inventory.KeyEnv{Batches: s.store, Recipes: s.master})
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := s.master.ValidateItem(k.Item); err != nil {
			return nil, err
		}
		if err := s.master.ValidateWarehouse(k.WarehouseID); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (s *LedgerService) validateCounterparty(doc inventory.Document) error {
	var id, role, warehouseID string
	switch d := doc.(type) {
	case *inventory.GoodsReceipt:
		id, role, warehouseID = d.SupplierID, RoleSupplier, d.WarehouseID
	case *inventory.GoodsReturn:
		id, role, warehouseID = d.SupplierID, RoleSupplier, d.WarehouseID
	case *inventory.SalesInvoice:
		id, role, warehouseID = d.ClientID, RoleClient, d.WarehouseID
	case *inventory.SalesReturn:
		// written-off returns touch no stock key, so check the warehouse here
		id, role, warehouseID = d.ClientID, RoleClient, d.WarehouseID
	default:
		return nil
	}
	if err := s.master.ValidateWarehouse(warehouseID); err != nil {
		return err
	}
	// system receipts raised by inventory counts have no supplier
	if id == "" {
		return nil
	}
	return s.master.ValidateCounterparty(id, role)
}

// lock takes the document lock and every key lock, waiting at most lockWait
func (s *LedgerService) lock(ctx context.Context, doc inventory.Document, keys []inventory.StockKey) (func(), error) {
	names := make([]string, 0, len(keys)+1)
	names = append(names, documentLockName(doc.Head().ID))
	for _, k := range keys {
		names = append(names, k.LockName())
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	start := time.Now()
	unlock, err := s.locker.Lock(lockCtx, names...)
	s.metrics.RecordLockWait(ctx, time.Since(start))
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// settle brings the store up to date under the held locks and re-reads the
// document, which another confirmation or an edit may have changed while
// we waited. It returns a nil document when it was confirmed meanwhile.
func (s *LedgerService) settle(ctx context.Context, id uuid.UUID, locked []inventory.StockKey) (inventory.Document, error) {
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Head().IsConfirmed() {
		return nil, nil
	}
	current, err := s.prepare(doc)
	if err != nil {
		return nil, err
	}
	if !coveredBy(current, locked) {
		return nil, fmt.Errorf("%w: %s changed while waiting for locks", shared.ErrConcurrencyConflict, doc.Head().Number)
	}
	return doc, nil
}

func coveredBy(keys, locked []inventory.StockKey) bool {
	held := make(map[inventory.StockKey]struct{}, len(locked))
	for _, k := range locked {
		held[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := held[k]; !ok {
			return false
		}
	}
	return true
}

// confirmLive applies doc on top of the live store. The caller holds the
// key locks and rebuildMu for reading.
func (s *LedgerService) confirmLive(ctx context.Context, doc inventory.Document) ([]inventory.Document, error) {
	tx := s.store.Begin()
	applied, err := s.applyDocument(ctx, tx, doc)
	if err != nil {
		return nil, err
	}
	if err := s.docs.SaveAll(ctx, applied); err != nil {
		return nil, s.persistenceError(ctx, doc, err)
	}
	touched := tx.TouchedKeys()
	tx.Commit()
	s.markSynced(confirmSeqs(applied)...)
	s.raiseHighWater(doc.Head().Date)
	addConfirmedEvents(applied)
	s.saveSnapshot(ctx, touched)
	return applied, nil
}

// confirmBackdated applies doc at its own date on a replay of history,
// replays everything after it and swaps the result in. The caller holds
// rebuildMu for writing and the lock of every stock key.
func (s *LedgerService) confirmBackdated(ctx context.Context, doc inventory.Document) ([]inventory.Document, error) {
	h := doc.Head()
	history, err := s.docs.FindConfirmed(ctx)
	if err != nil {
		return nil, err
	}

	base, err := s.replayer.Replay(ctx, history, h.Date, nil)
	if err != nil {
		return nil, fmt.Errorf("replaying history up to %s: %w", h.Date.Format(time.DateOnly), err)
	}
	tx := base.Begin()
	applied, err := s.applyDocument(ctx, tx, doc)
	if err != nil {
		return nil, err
	}
	tx.Commit()

	rebuilt, err := s.replayer.Replay(ctx, append(history, applied...), time.Time{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s dated %s: %w",
			shared.ErrBackdatedConflict, h.Number, h.Date.Format(time.DateOnly), err)
	}
	if err := s.docs.SaveAll(ctx, applied); err != nil {
		return nil, s.persistenceError(ctx, doc, err)
	}

	changed := s.store.Diff(rebuilt)
	s.store.ReplaceWith(rebuilt)
	// documents committed after history was read are not in rebuilt; the
	// next Refresh picks them up
	s.resetSync(history)
	s.markSynced(confirmSeqs(applied)...)
	s.raiseHighWater(h.Date)
	addConfirmedEvents(applied)
	s.saveSnapshot(ctx, changed)

	h.AddDomainEvent(inventory.NewStockRebuiltEvent(h.ID, len(changed)))
	s.metrics.RecordRebuild(ctx)
	logger.WithLogger(ctx, s.logger).Info("Stock rebuilt for backdated document",
		zap.String("number", h.Number),
		zap.Time("date", h.Date),
		zap.Int("changed_keys", len(changed)),
		zap.Int("history", len(history)),
	)
	return applied, nil
}

// applyDocument runs doc's effector in tx and marks it confirmed. It
// returns every document that took effect: doc plus, for inventory counts,
// the generated receipt and write-off.
func (s *LedgerService) applyDocument(ctx context.Context, tx *inventory.StockTx, doc inventory.Document) ([]inventory.Document, error) {
	env := inventory.EffectEnv{Engine: s.engine, Recipes: s.master}
	at := s.now()

	switch d := doc.(type) {
	case *inventory.InventoryCount:
		return s.applyCount(ctx, tx, d, env, at)
	case *inventory.SalesReturn:
		if err := s.priceSalesReturn(ctx, d); err != nil {
			return nil, err
		}
	}

	if _, err := doc.ApplyStock(ctx, tx, env); err != nil {
		return nil, err
	}
	if err := s.markConfirmed(doc, at); err != nil {
		return nil, err
	}
	return []inventory.Document{doc}, nil
}

// applyCount settles an inventory count through a system goods receipt for
// surplus and a FIFO write-off for shortage, confirmed together with it.
func (s *LedgerService) applyCount(ctx context.Context, tx *inventory.StockTx, count *inventory.InventoryCount, env inventory.EffectEnv, at time.Time) ([]inventory.Document, error) {
	receipt, writeOff, err := count.Reconcile(ctx, tx, s.engine)
	if err != nil {
		return nil, err
	}
	if err := s.markConfirmed(count, at); err != nil {
		return nil, err
	}

	generated := make([]inventory.Document, 0, 2)
	if receipt != nil {
		generated = append(generated, receipt)
	}
	if writeOff != nil {
		generated = append(generated, writeOff)
	}

	applied := []inventory.Document{count}
	for _, g := range generated {
		if g.Head().Number, err = s.docs.NextNumber(ctx, g.Kind()); err != nil {
			return nil, fmt.Errorf("settling %s: numbering %s: %w", count.Number, g.Kind(), err)
		}
		if _, err := g.ApplyStock(ctx, tx, env); err != nil {
			return nil, fmt.Errorf("settling %s: %s: %w", count.Number, g.Kind(), err)
		}
		if err := s.markConfirmed(g, at); err != nil {
			return nil, err
		}
		applied = append(applied, g)
	}
	return applied, nil
}

// priceSalesReturn prices a return from its invoice, capped by what earlier
// confirmed returns against that invoice already took back. Unlinked
// written-off returns need no pricing.
func (s *LedgerService) priceSalesReturn(ctx context.Context, ret *inventory.SalesReturn) error {
	if ret.SalesInvoiceID == nil {
		return nil
	}
	doc, err := s.docs.FindByID(ctx, *ret.SalesInvoiceID)
	if err != nil {
		return fmt.Errorf("sales return %s: invoice: %w", ret.Number, err)
	}
	invoice, ok := doc.(*inventory.SalesInvoice)
	if !ok {
		return fmt.Errorf("%w: %s is not a sales invoice", shared.ErrInvalidState, doc.Head().Number)
	}

	confirmed, err := s.docs.FindAll(ctx, inventory.DocumentFilter{
		Kind:   inventory.KindSalesReturn,
		Status: inventory.StatusConfirmed,
	})
	if err != nil {
		return fmt.Errorf("sales return %s: earlier returns: %w", ret.Number, err)
	}
	var earlier []*inventory.SalesReturn
	for _, d := range confirmed {
		if r, ok := d.(*inventory.SalesReturn); ok && r.SalesInvoiceID != nil && *r.SalesInvoiceID == invoice.ID {
			earlier = append(earlier, r)
		}
	}
	if err := ret.PriceFrom(invoice, earlier); err != nil {
		return fmt.Errorf("sales return %s: %w", ret.Number, err)
	}
	return nil
}

// markConfirmed confirms doc in memory; the repository assigns its
// sequence when the confirmation is saved
func (s *LedgerService) markConfirmed(doc inventory.Document, at time.Time) error {
	return doc.Head().MarkConfirmed(0, at)
}

// addConfirmedEvents raises the confirmed event of saved documents, which
// carry their sequence by now
func addConfirmedEvents(docs []inventory.Document) {
	for _, d := range docs {
		d.Head().AddDomainEvent(inventory.NewDocumentConfirmedEvent(d, false))
	}
}

func confirmSeqs(docs []inventory.Document) []int64 {
	seqs := make([]int64, 0, len(docs))
	for _, d := range docs {
		seqs = append(seqs, d.Head().ConfirmSeq)
	}
	return seqs
}

func (s *LedgerService) persistenceError(ctx context.Context, doc inventory.Document, err error) error {
	logger.WithLogger(ctx, s.logger).Error("Failed to persist confirmed documents",
		zap.String("number", doc.Head().Number),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
}

// saveSnapshot stores the live batches of keys. The store stays
// authoritative when this fails; Load repairs the snapshot.
func (s *LedgerService) saveSnapshot(ctx context.Context, keys []inventory.StockKey) {
	if s.snapshots == nil || len(keys) == 0 {
		return
	}
	var batches []inventory.StockBatch
	for _, k := range keys {
		batches = append(batches, s.store.Batches(k)...)
	}
	if err := s.snapshots.ReplaceKeys(context.WithoutCancel(ctx), keys, batches); err != nil {
		logger.WithLogger(ctx, s.logger).Error("Failed to save batch snapshot",
			zap.Int("keys", len(keys)),
			zap.Error(err),
		)
	}
}
