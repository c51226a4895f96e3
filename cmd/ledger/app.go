package main

import (
	"context"
	"errors"
	"fmt"

	financeapp "github.com/erp/stockledger/internal/application/finance"
	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/lock"
	"github.com/erp/stockledger/internal/infrastructure/masterdata"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/strategy"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// app is the wired ledger: database, master data, ledger and debt services
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *persistence.Database
	master *masterdata.Registry
	ledger *ledger.LedgerService
	debts  *financeapp.DebtService
	bus    *event.InMemoryEventBus

	tracer    *telemetry.TracerProvider
	meter     *telemetry.MeterProvider
	reader    *sdkmetric.ManualReader
	closeLock func() error
}

// newApp wires every component from cfg and loads the ledger history
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close(ctx)
		}
	}()

	telCfg := telemetry.Config{
		Enabled:       cfg.Telemetry.Enabled,
		ServiceName:   cfg.Telemetry.ServiceName,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	}
	var err error
	if a.tracer, err = telemetry.NewTracerProvider(telCfg, log); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.reader = sdkmetric.NewManualReader()
	if a.meter, err = telemetry.NewMeterProvider(telCfg, log, a.reader); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	metrics, err := telemetry.NewLedgerMetrics(a.meter.Meter("stockledger"))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if a.db, err = persistence.NewDatabase(&cfg.Database, log); err != nil {
		return nil, err
	}
	if a.db.Driver == "sqlite" {
		if err := persistence.AutoMigrate(a.db.DB); err != nil {
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	if a.master, err = masterdata.LoadFile(cfg.Ledger.MasterDataPath); err != nil {
		return nil, fmt.Errorf("master data: %w", err)
	}

	strategies, err := strategy.NewRegistryWithDefaults()
	if err != nil {
		return nil, err
	}
	batchStrategy, err := strategies.GetBatchStrategy(cfg.Ledger.BatchStrategy)
	if err != nil {
		return nil, err
	}
	costStrategy, err := strategies.GetCostStrategy(cfg.Ledger.CostStrategy)
	if err != nil {
		return nil, err
	}
	allocator, err := strategies.GetAllocationStrategy(cfg.Ledger.AllocationStrategy)
	if err != nil {
		return nil, err
	}

	locker, closeLock, err := lock.NewKeyLocker(cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	a.closeLock = closeLock

	a.bus = event.NewInMemoryEventBus(log)
	a.debts = financeapp.NewDebtService(
		finance.NewDebtLedger(allocator),
		persistence.NewGormSettlementRepository(a.db.DB),
		log,
	)
	a.debts.SetMetrics(metrics)
	a.bus.Subscribe(a.debts)

	engine := inventory.NewConsumptionEngine(batchStrategy, costStrategy)
	a.ledger = ledger.NewLedgerService(persistence.NewGormDocumentRepository(a.db.DB), a.master, engine, locker)
	a.ledger.SetSnapshotRepository(persistence.NewGormBatchSnapshotRepository(a.db.DB))
	a.ledger.SetEventPublisher(a.bus)
	a.ledger.SetMetrics(metrics)
	a.ledger.SetLogger(log)
	a.ledger.SetTimeouts(cfg.Ledger.LockWaitTimeout, cfg.Ledger.ConfirmTimeout)
	a.ledger.SetFailOnDrift(cfg.Ledger.FailOnDrift)

	if err := a.bus.Start(ctx); err != nil {
		return nil, err
	}
	if err := a.ledger.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	if err := a.debts.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restoring balances: %w", err)
	}

	ok = true
	return a, nil
}

// close releases everything newApp opened; safe on a partly wired app
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Stop(ctx))
	}
	if a.meter != nil && a.meter.IsEnabled() {
		a.logMetrics(ctx)
		errs = append(errs, a.meter.Shutdown(ctx))
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.closeLock != nil {
		errs = append(errs, a.closeLock())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error("Error during shutdown", zap.Error(err))
	}
}

// logMetrics writes the counters collected during the run at debug level
func (a *app) logMetrics(ctx context.Context) {
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(ctx, &rm); err != nil {
		a.log.Debug("Failed to collect metrics", zap.Error(err))
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			a.log.Debug("Metric", zap.String("name", m.Name), zap.Int64("value", total))
		}
	}
}
