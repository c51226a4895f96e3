package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Refresh applies the documents other processes confirmed since the store
// was last brought up to date. Confirm calls it under its key locks, so the
// batches it consumes are the committed ones. Documents dated before the
// newest one already applied force a full replay.
func (s *LedgerService) Refresh(ctx context.Context) error {
	latest, err := s.docs.LatestConfirmSeq(ctx)
	if err != nil {
		return fmt.Errorf("reading confirm sequence: %w", err)
	}
	if s.syncedThrough() >= latest {
		return nil
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	// confirmations of this process that were saving meanwhile are marked now
	if s.syncedThrough() >= latest {
		return nil
	}

	docs, err := s.docs.FindConfirmedAfter(ctx, s.syncedThrough())
	if err != nil {
		return fmt.Errorf("loading new confirmations: %w", err)
	}
	var (
		foreign []inventory.Document
		seqs    []int64
		rebuild bool
	)
	for _, d := range docs {
		h := d.Head()
		seqs = append(seqs, h.ConfirmSeq)
		if s.isApplied(h.ConfirmSeq) {
			continue
		}
		foreign = append(foreign, d)
		if s.isBackdated(h.Date) {
			rebuild = true
		}
	}
	if len(foreign) == 0 {
		s.markSynced(seqs...)
		return nil
	}

	log := logger.WithLogger(ctx, s.logger)
	if !rebuild {
		if err := s.applyForeign(ctx, foreign); err != nil {
			log.Warn("Replaying everything after a failed catch-up", zap.Error(err))
			rebuild = true
		} else {
			s.markSynced(seqs...)
		}
	}
	if rebuild {
		if err := s.rebuildFromHistory(ctx); err != nil {
			return err
		}
		s.metrics.RecordRebuild(ctx)
	}

	for _, d := range foreign {
		d.Head().AddDomainEvent(inventory.NewDocumentConfirmedEvent(d, false))
	}
	s.publishDomainEvents(context.WithoutCancel(ctx), foreign...)
	log.Info("Applied documents confirmed elsewhere",
		zap.Int("documents", len(foreign)),
		zap.Bool("rebuilt", rebuild),
	)
	return nil
}

// applyForeign folds docs into the live store in replay order, all or
// nothing. The caller holds rebuildMu for writing.
func (s *LedgerService) applyForeign(ctx context.Context, docs []inventory.Document) error {
	work := s.store.Clone()
	for _, d := range inventory.SortForReplay(docs) {
		if _, err := s.replayer.Apply(ctx, work, d); err != nil {
			return err
		}
	}
	s.store.ReplaceWith(work)
	for _, d := range docs {
		s.raiseHighWater(d.Head().Date)
	}
	return nil
}

// rebuildFromHistory replays every confirmed document into the live store.
// The caller holds rebuildMu for writing.
func (s *LedgerService) rebuildFromHistory(ctx context.Context) error {
	history, err := s.docs.FindConfirmed(ctx)
	if err != nil {
		return fmt.Errorf("loading confirmed history: %w", err)
	}
	rebuilt, err := s.replayer.Replay(ctx, history, time.Time{}, nil)
	if err != nil {
		return fmt.Errorf("replaying confirmed history: %w", err)
	}
	s.store.ReplaceWith(rebuilt)
	s.resetSync(history)
	return nil
}

// resetSync records that the store reflects exactly history. One read of
// the confirmed documents always holds a gapless run of sequences because
// they are handed out in commit order.
func (s *LedgerService) resetSync(history []inventory.Document) {
	var maxSeq int64
	var highWater time.Time
	for _, d := range history {
		h := d.Head()
		if h.ConfirmSeq > maxSeq {
			maxSeq = h.ConfirmSeq
		}
		if h.Date.After(highWater) {
			highWater = h.Date
		}
	}
	s.syncMu.Lock()
	s.syncedSeq = maxSeq
	s.ahead = make(map[int64]struct{})
	s.syncMu.Unlock()

	s.hwMu.Lock()
	s.highWater = highWater
	s.hwMu.Unlock()
}

// markSynced records sequences applied to the store
func (s *LedgerService) markSynced(seqs ...int64) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	for _, seq := range seqs {
		if seq > s.syncedSeq {
			s.ahead[seq] = struct{}{}
		}
	}
	for {
		if _, ok := s.ahead[s.syncedSeq+1]; !ok {
			return
		}
		delete(s.ahead, s.syncedSeq+1)
		s.syncedSeq++
	}
}

func (s *LedgerService) syncedThrough() int64 {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.syncedSeq
}

func (s *LedgerService) isApplied(seq int64) bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	if seq <= s.syncedSeq {
		return true
	}
	_, ok := s.ahead[seq]
	return ok
}
