package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// history builds a small confirmed history and the live store it produced
func history(t *testing.T) ([]Document, *BatchStore) {
	t.Helper()
	live := NewBatchStore()
	var docs []Document
	var seq int64
	push := func(doc Document, recipes RecipeBook) {
		apply(t, live, doc, recipes)
		seq++
		docs = append(docs, confirmed(doc, seq))
	}

	gr1 := receipt(t, day(1), "W1", flour, "100", "10")
	push(gr1, nil)
	push(receipt(t, day(2), "W1", flour, "50", "12"), nil)

	pn := NewProductionNote(day(3), "W1")
	require.NoError(t, pn.AddLine("bread", dec("10")))
	push(pn, breadRecipe())

	tr := NewInternalTransfer(day(4), "W1", "W2")
	require.NoError(t, tr.AddLine(flour, dec("90")))
	push(tr, nil)

	push(NewPriceAdjustment(day(5), BatchIDFor(tr.ID, 0, 0), dec("11")), nil)

	si := NewSalesInvoice(day(6), "client-1", "W1")
	require.NoError(t, si.AddLine("bread", dec("4"), dec("30")))
	push(si, nil)

	wo := NewWriteOff(day(6), "W2", "")
	require.NoError(t, wo.AddLine(flour, dec("5")))
	push(wo, nil)

	return docs, live
}

func TestReplayer_Replay(t *testing.T) {
	ctx := context.Background()
	r := NewReplayer(newTestEngine())

	t.Run("replaying everything equals the live store", func(t *testing.T) {
		docs, live := history(t)
		rebuilt, err := r.Replay(ctx, docs, time.Time{}, nil)
		require.NoError(t, err)
		assert.Empty(t, rebuilt.Diff(live))
	})

	t.Run("input order does not matter", func(t *testing.T) {
		docs, live := history(t)
		reversed := make([]Document, 0, len(docs))
		for i := len(docs) - 1; i >= 0; i-- {
			reversed = append(reversed, docs[i])
		}
		rebuilt, err := r.Replay(ctx, reversed, time.Time{}, nil)
		require.NoError(t, err)
		assert.True(t, rebuilt.Equal(live))
	})

	t.Run("recorded costs are not rewritten", func(t *testing.T) {
		docs, _ := history(t)
		wo := docs[len(docs)-1].(*WriteOff)
		before := wo.Lines[0].TotalCost

		_, err := r.Replay(ctx, docs, time.Time{}, nil)
		require.NoError(t, err)
		assert.True(t, wo.Lines[0].TotalCost.Equal(before))
	})

	t.Run("drafts are skipped", func(t *testing.T) {
		docs, live := history(t)
		draft := NewWriteOff(day(7), "W1", "")
		require.NoError(t, draft.AddLine(flour, dec("1")))

		rebuilt, err := r.Replay(ctx, append(docs, draft), time.Time{}, nil)
		require.NoError(t, err)
		assert.True(t, rebuilt.Equal(live))
	})

	t.Run("visitor sees every document", func(t *testing.T) {
		docs, _ := history(t)
		var seen []DocumentKind
		_, err := r.Replay(ctx, docs, time.Time{}, func(doc Document, eff *Effect) error {
			seen = append(seen, doc.Kind())
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, len(docs))
		assert.Equal(t, KindGoodsReceipt, seen[0])
	})

	t.Run("failing document aborts the replay", func(t *testing.T) {
		docs, _ := history(t)
		wo := NewWriteOff(day(8), "W1", "")
		require.NoError(t, wo.AddLine(flour, dec("1000")))

		_, err := r.Replay(ctx, append(docs, confirmed(wo, 99)), time.Time{}, nil)
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	})
}

func TestSortForReplay(t *testing.T) {
	late := confirmed(receipt(t, day(2), "W1", flour, "1", "1"), 1)
	pending := confirmed(receipt(t, day(1), "W1", flour, "1", "1"), 0)
	second := confirmed(receipt(t, day(1), "W1", flour, "1", "1"), 3)
	first := confirmed(receipt(t, day(1), "W1", flour, "1", "1"), 2)

	sorted := SortForReplay([]Document{late, pending, second, first})

	// unsequenced documents follow the sequenced ones of their day
	assert.Equal(t, []Document{first, second, pending, late}, sorted)
}

func TestReplayer_StockAsOf(t *testing.T) {
	ctx := context.Background()
	r := NewReplayer(newTestEngine())
	docs, _ := history(t)

	asOf, err := r.StockAsOf(ctx, docs, day(2))
	require.NoError(t, err)
	assert.True(t, asOf.OnHand(NewStockKey(flour, "W1")).Equal(dec("150")))
	assert.True(t, asOf.OnHand(NewStockKey(bread, "W1")).IsZero())

	asOf, err = r.StockAsOf(ctx, docs, day(4))
	require.NoError(t, err)
	// 150 - 20 for bread - 90 transferred
	assert.True(t, asOf.OnHand(NewStockKey(flour, "W1")).Equal(dec("40")))
	assert.True(t, asOf.OnHand(NewStockKey(flour, "W2")).Equal(dec("90")))

	_, err = r.StockAsOf(ctx, docs, time.Time{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestReplayer_Turnover(t *testing.T) {
	ctx := context.Background()
	r := NewReplayer(newTestEngine())
	docs, _ := history(t)
	key := NewStockKey(flour, "W1")

	report, err := r.Turnover(ctx, docs, key, day(2), day(5))
	require.NoError(t, err)

	assert.True(t, report.Opening.Equal(dec("100")))
	require.Len(t, report.Days, 4)

	d2 := report.Days[0]
	assert.True(t, d2.Opening.Equal(dec("100")))
	assert.True(t, d2.Incoming.Equal(dec("50")))
	assert.True(t, d2.Closing.Equal(dec("150")))
	require.Len(t, d2.Entries, 1)
	assert.Equal(t, KindGoodsReceipt, d2.Entries[0].Kind)

	d3 := report.Days[1]
	assert.True(t, d3.Outgoing.Equal(dec("20")))
	assert.Equal(t, KindProductionNote, d3.Entries[0].Kind)

	d5 := report.Days[3]
	assert.Empty(t, d5.Entries, "price adjustments do not move quantities of this key")
	assert.True(t, report.Closing.Equal(dec("40")))

	t.Run("inverted range is rejected", func(t *testing.T) {
		_, err := r.Turnover(ctx, docs, key, day(5), day(2))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
