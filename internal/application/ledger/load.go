package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const maxDriftSample = 5

// Load rebuilds the live store by replaying every confirmed document,
// checks the stored batch snapshot for drift and re-emits a confirmed event
// (Replayed set) for each document so subscribers can rebuild their own
// state. Run it once before serving.
func (s *LedgerService) Load(ctx context.Context) error {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "load")
	defer span.End()
	ctx = logger.WithOperation(ctx, "load")
	log := logger.WithLogger(ctx, s.logger)
	start := time.Now()

	all, err := s.docs.FindAll(ctx, inventory.DocumentFilter{})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("loading documents: %w", err)
	}

	var history []inventory.Document
	for _, d := range all {
		if d.Head().IsConfirmed() {
			history = append(history, d)
		}
	}

	rebuilt, err := s.replayer.Replay(ctx, history, time.Time{}, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("replaying confirmed history: %w", err)
	}
	if err := s.checkDrift(ctx, rebuilt); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.rebuildMu.Lock()
	s.store.ReplaceWith(rebuilt)
	s.resetSync(history)
	s.rebuildMu.Unlock()

	if s.eventPublisher != nil {
		for _, d := range inventory.SortForReplay(history) {
			if err := s.eventPublisher.Publish(ctx, inventory.NewDocumentConfirmedEvent(d, true)); err != nil {
				log.Error("Failed to republish confirmed document",
					zap.String("number", d.Head().Number),
					zap.Error(err),
				)
			}
		}
	}

	keys := len(s.store.Keys())
	s.metrics.RecordStockKeys(ctx, keys)
	telemetry.SetAttributes(span, "documents", len(all), "confirmed", len(history), "keys", keys)
	log.Info("Ledger loaded",
		zap.Int("documents", len(all)),
		zap.Int("confirmed", len(history)),
		zap.Int("stock_keys", keys),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// checkDrift compares the stored snapshot with the replayed store. A
// drifted snapshot is rewritten unless failOnDrift is set.
func (s *LedgerService) checkDrift(ctx context.Context, rebuilt *inventory.BatchStore) error {
	if s.snapshots == nil {
		return nil
	}
	stored, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading batch snapshot: %w", err)
	}
	drift := inventory.NewBatchStoreFrom(stored).Diff(rebuilt)
	if len(drift) == 0 {
		return nil
	}

	sample := make([]string, 0, maxDriftSample)
	for _, k := range drift {
		if len(sample) == maxDriftSample {
			break
		}
		sample = append(sample, k.String())
	}
	log := logger.WithLogger(ctx, s.logger)
	log.Warn("Batch snapshot differs from replayed history",
		zap.Int("keys", len(drift)),
		zap.Strings("sample", sample),
	)
	if s.failOnDrift {
		return fmt.Errorf("%w: batch snapshot differs from history on %d keys", shared.ErrInvalidState, len(drift))
	}
	if err := s.snapshots.ReplaceAll(ctx, rebuilt.All()); err != nil {
		log.Error("Failed to repair batch snapshot", zap.Error(err))
	}
	return nil
}
