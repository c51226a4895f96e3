// Package ledger hosts the stock ledger service. The service owns the live
// batch store: documents are confirmed through it, queries read from it, and
// history is replayed into it on startup. Several processes may confirm
// against one database; each brings its store up to date with the
// documents the others confirmed before it applies a new one.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLockWait bounds how long a confirmation waits for its key locks
	DefaultLockWait = 10 * time.Second
	// DefaultConfirmTimeout bounds a whole confirmation, rebuild included
	DefaultConfirmTimeout = time.Minute

	serviceName = "ledger"
)

// MasterData is the read-only registry the service validates references against
type MasterData interface {
	inventory.RecipeBook
	ValidateItem(item inventory.ItemRef) error
	ValidateWarehouse(id string) error
	ValidateCounterparty(id, role string) error
}

// Counterparty roles understood by MasterData.ValidateCounterparty
const (
	RoleSupplier = "supplier"
	RoleClient   = "client"
)

// LedgerService confirms documents against the live batch store and answers
// stock queries. It is safe for concurrent use.
type LedgerService struct {
	docs      inventory.DocumentRepository
	snapshots inventory.BatchSnapshotRepository
	master    MasterData
	engine    *inventory.ConsumptionEngine
	replayer  *inventory.Replayer
	locker    shared.KeyLocker

	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger

	lockWait       time.Duration
	confirmTimeout time.Duration
	failOnDrift    bool

	store *inventory.BatchStore
	// live confirmations hold rebuildMu for reading, rebuilds for writing
	rebuildMu sync.RWMutex

	// the store reflects every confirm sequence up to syncedSeq and the
	// ones in ahead
	syncMu    sync.Mutex
	syncedSeq int64
	ahead     map[int64]struct{}

	hwMu      sync.Mutex
	highWater time.Time

	now func() time.Time
}

// NewLedgerService creates a new LedgerService with an empty batch store.
// Call Load before serving to rebuild the store from persisted history.
func NewLedgerService(
	docs inventory.DocumentRepository,
	master MasterData,
	engine *inventory.ConsumptionEngine,
	locker shared.KeyLocker,
) *LedgerService {
	return &LedgerService{
		docs:           docs,
		master:         master,
		engine:         engine,
		replayer:       inventory.NewReplayer(engine),
		locker:         locker,
		logger:         zap.NewNop(),
		lockWait:       DefaultLockWait,
		confirmTimeout: DefaultConfirmTimeout,
		store:          inventory.NewBatchStore(),
		ahead:          make(map[int64]struct{}),
		now:            time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *LedgerService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetSnapshotRepository enables persisting the live store after each confirmation
func (s *LedgerService) SetSnapshotRepository(repo inventory.BatchSnapshotRepository) {
	s.snapshots = repo
}

// SetMetrics sets the ledger metrics (optional)
func (s *LedgerService) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// SetLogger sets the service logger
func (s *LedgerService) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger.Named(serviceName)
	}
}

// SetTimeouts overrides the lock wait and confirmation timeouts; zero keeps the current value
func (s *LedgerService) SetTimeouts(lockWait, confirm time.Duration) {
	if lockWait > 0 {
		s.lockWait = lockWait
	}
	if confirm > 0 {
		s.confirmTimeout = confirm
	}
}

// SetFailOnDrift makes Load fail instead of repairing a snapshot that
// differs from the replayed history
func (s *LedgerService) SetFailOnDrift(fail bool) {
	s.failOnDrift = fail
}

func (s *LedgerService) publishDomainEvents(ctx context.Context, docs ...inventory.Document) {
	for _, doc := range docs {
		h := doc.Head()
		events := h.GetDomainEvents()
		h.ClearDomainEvents()
		if s.eventPublisher == nil || len(events) == 0 {
			continue
		}
		if err := s.eventPublisher.Publish(ctx, events...); err != nil {
			s.logger.Error("Failed to publish document events",
				zap.String("document_id", h.ID.String()),
				zap.String("number", h.Number),
				zap.Error(err),
			)
		}
	}
}

func (s *LedgerService) raiseHighWater(date time.Time) {
	s.hwMu.Lock()
	defer s.hwMu.Unlock()
	if date.After(s.highWater) {
		s.highWater = date
	}
}

// isBackdated reports whether date lies before the newest applied document
func (s *LedgerService) isBackdated(date time.Time) bool {
	s.hwMu.Lock()
	defer s.hwMu.Unlock()
	return date.Before(s.highWater)
}

func documentLockName(id uuid.UUID) string {
	return "document:" + id.String()
}
