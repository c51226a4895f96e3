package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("meter cannot be nil")

// LedgerMetrics records confirmation outcomes, rebuilds, lock waits and
// the size of the live store.
type LedgerMetrics struct {
	confirmed       *Counter
	rejected        *Counter
	rebuilds        *Counter
	payments        *Counter
	confirmDuration *Histogram
	lockWait        *Histogram
	stockKeys       *Gauge
}

// NewLedgerMetrics registers the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error

	if m.confirmed, err = NewCounter(meter, "ledger_documents_confirmed_total",
		"Documents confirmed", "{document}"); err != nil {
		return nil, err
	}
	if m.rejected, err = NewCounter(meter, "ledger_documents_rejected_total",
		"Confirmations rejected by a ledger error", "{document}"); err != nil {
		return nil, err
	}
	if m.rebuilds, err = NewCounter(meter, "ledger_stock_rebuilds_total",
		"Live store rebuilds forced by backdated documents", "{rebuild}"); err != nil {
		return nil, err
	}
	if m.payments, err = NewCounter(meter, "ledger_payments_recorded_total",
		"Counterparty payments recorded", "{payment}"); err != nil {
		return nil, err
	}
	if m.confirmDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_confirm_duration_seconds",
		Description: "Time to confirm a document, locks included",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.lockWait, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_lock_wait_seconds",
		Description: "Time spent waiting for stock key locks",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.stockKeys, err = NewGauge(meter, "ledger_stock_keys",
		"Item and warehouse pairs holding stock", "{key}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordConfirmed counts a successful confirmation
func (m *LedgerMetrics) RecordConfirmed(ctx context.Context, kind string, backdated bool, d time.Duration) {
	if m == nil {
		return
	}
	m.confirmed.Inc(ctx, AttrDocumentKind.String(kind), AttrBackdated.Bool(backdated))
	m.confirmDuration.RecordDuration(ctx, d, AttrDocumentKind.String(kind))
}

// RecordRejected counts a failed confirmation by error code
func (m *LedgerMetrics) RecordRejected(ctx context.Context, kind, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "UNKNOWN"
	}
	m.rejected.Inc(ctx, AttrDocumentKind.String(kind), AttrErrorCode.String(code))
}

// RecordRebuild counts a replay of the live store
func (m *LedgerMetrics) RecordRebuild(ctx context.Context) {
	if m == nil {
		return
	}
	m.rebuilds.Inc(ctx)
}

// RecordLockWait records how long a confirmation waited for its locks
func (m *LedgerMetrics) RecordLockWait(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.RecordDuration(ctx, d)
}

// RecordPayment counts a recorded payment
func (m *LedgerMetrics) RecordPayment(ctx context.Context, direction string) {
	if m == nil {
		return
	}
	m.payments.Inc(ctx, AttrDirection.String(direction))
}

// RecordStockKeys sets the number of keys currently holding stock
func (m *LedgerMetrics) RecordStockKeys(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.stockKeys.Record(ctx, int64(n))
}
