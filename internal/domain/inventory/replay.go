package inventory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SortForReplay returns a copy of docs ordered by date, then confirmation
// sequence. Documents not sequenced yet come last within their date, where
// their sequence will put them once saved.
func SortForReplay(docs []Document) []Document {
	out := append([]Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Head(), out[j].Head()
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return replaySeq(a) < replaySeq(b)
	})
	return out
}

func replaySeq(h *DocumentHeader) int64 {
	if h.ConfirmSeq == 0 {
		return math.MaxInt64
	}
	return h.ConfirmSeq
}

// ReplayVisitor observes every document applied during a replay
type ReplayVisitor func(doc Document, eff *Effect) error

// Replayer rebuilds stock state by folding confirmed documents over an
// empty store. Documents are cloned, so their recorded costs are untouched.
type Replayer struct {
	engine *ConsumptionEngine
}

// NewReplayer creates a replayer
func NewReplayer(engine *ConsumptionEngine) *Replayer {
	return &Replayer{engine: engine}
}

// Apply applies a copy of doc to store in its own transaction
func (r *Replayer) Apply(ctx context.Context, store *BatchStore, doc Document) (*Effect, error) {
	tx := store.Begin()
	eff, err := doc.Clone().ApplyStock(ctx, tx, EffectEnv{Engine: r.engine})
	if err != nil {
		h := doc.Head()
		return nil, fmt.Errorf("replaying %s %s: %w", doc.Kind(), h.label(), err)
	}
	tx.Commit()
	return eff, nil
}

// Replay folds the confirmed documents dated at or before until (every
// document when until is zero) into a fresh store.
func (r *Replayer) Replay(ctx context.Context, docs []Document, until time.Time, visit ReplayVisitor) (*BatchStore, error) {
	store := NewBatchStore()
	for _, doc := range SortForReplay(docs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := doc.Head()
		if !h.IsConfirmed() {
			continue
		}
		if !until.IsZero() && h.Date.After(until) {
			break
		}
		eff, err := r.Apply(ctx, store, doc)
		if err != nil {
			return nil, err
		}
		if visit != nil {
			if err := visit(doc, eff); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// StockAsOf returns the batch state after every document dated at or before asOf
func (r *Replayer) StockAsOf(ctx context.Context, docs []Document, asOf time.Time) (*BatchStore, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("%w: as-of date is required", shared.ErrInvalidInput)
	}
	return r.Replay(ctx, docs, asOf, nil)
}

// TurnoverEntry is one document's net movement on the reported key
type TurnoverEntry struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Number     string          `json:"number"`
	Kind       DocumentKind    `json:"kind"`
	Date       time.Time       `json:"date"`
	Delta      decimal.Decimal `json:"delta"`
}

// TurnoverDay groups the movements of one calendar day
type TurnoverDay struct {
	Date     time.Time       `json:"date"`
	Opening  decimal.Decimal `json:"opening"`
	Incoming decimal.Decimal `json:"incoming"`
	Outgoing decimal.Decimal `json:"outgoing"`
	Closing  decimal.Decimal `json:"closing"`
	Entries  []TurnoverEntry `json:"entries"`
}

// TurnoverReport is the per-day movement history of one key
type TurnoverReport struct {
	Key     StockKey        `json:"key"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Opening decimal.Decimal `json:"opening"`
	Closing decimal.Decimal `json:"closing"`
	Days    []TurnoverDay   `json:"days"`
}

// MaxTurnoverDays bounds the length of a turnover report
const MaxTurnoverDays = 3660

// Turnover replays history and reports, for every day from..to inclusive,
// the opening quantity, each document's movement and the closing quantity.
func (r *Replayer) Turnover(ctx context.Context, docs []Document, key StockKey, from, to time.Time) (*TurnoverReport, error) {
	start := startOfDay(from)
	end := startOfDay(to)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: turnover range ends before it starts", shared.ErrInvalidInput)
	}
	dayCount := daysBetween(start, end) + 1
	if dayCount > MaxTurnoverDays {
		return nil, fmt.Errorf("%w: turnover range longer than %d days", shared.ErrInvalidInput, MaxTurnoverDays)
	}

	report := &TurnoverReport{Key: key, From: start, To: end, Opening: decimal.Zero}
	days := make([]TurnoverDay, dayCount)
	for i := range days {
		days[i].Date = start.AddDate(0, 0, i)
		days[i].Incoming = decimal.Zero
		days[i].Outgoing = decimal.Zero
	}

	until := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	_, err := r.Replay(ctx, docs, until, func(doc Document, eff *Effect) error {
		touched := false
		for _, m := range eff.Movements {
			if m.Key == key {
				touched = true
				break
			}
		}
		if !touched {
			return nil
		}
		delta := eff.NetFor(key)
		h := doc.Head()
		if h.Date.Before(start) {
			report.Opening = report.Opening.Add(delta)
			return nil
		}
		idx := dayIndex(start, h.Date)
		if idx < 0 || idx >= len(days) {
			return nil
		}
		days[idx].Entries = append(days[idx].Entries, TurnoverEntry{
			DocumentID: h.ID,
			Number:     h.Number,
			Kind:       doc.Kind(),
			Date:       h.Date,
			Delta:      delta,
		})
		if delta.IsPositive() {
			days[idx].Incoming = days[idx].Incoming.Add(delta)
		} else {
			days[idx].Outgoing = days[idx].Outgoing.Add(delta.Neg())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	balance := report.Opening
	for i := range days {
		days[i].Opening = balance
		balance = balance.Add(days[i].Incoming).Sub(days[i].Outgoing)
		days[i].Closing = balance
	}
	report.Days = days
	report.Closing = balance
	return report, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayIndex(start, t time.Time) int {
	t = t.In(start.Location())
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, start.Location())
	return daysBetween(start, day)
}

func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
