package finance

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/strategy/allocation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func payable(number string, date time.Time, amount int64) DebtDocument {
	return DebtDocument{
		DocumentID:     uuid.New(),
		Number:         number,
		CounterpartyID: "supplier-1",
		Direction:      DirectionPayable,
		Date:           date,
		Amount:         decimal.NewFromInt(amount),
	}
}

func newLedgerWith(t *testing.T, docs ...DebtDocument) *DebtLedger {
	t.Helper()
	l := NewDebtLedger(allocation.NewFIFOAllocationStrategy())
	for _, d := range docs {
		added, err := l.RegisterDocument(d)
		require.NoError(t, err)
		require.True(t, added)
	}
	return l
}

func TestDebtLedger_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("payment settles the oldest receipt first", func(t *testing.T) {
		gr1 := payable("GR-000001", day(1), 1000)
		gr2 := payable("GR-000002", day(5), 500)
		l := newLedgerWith(t, gr2, gr1)

		s, err := l.Apply(ctx, NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(1200), day(10)))
		require.NoError(t, err)

		require.Len(t, s.Allocations, 2)
		assert.Equal(t, gr1.DocumentID, s.Allocations[0].DocumentID)
		assert.True(t, s.Allocations[0].Amount.Equal(decimal.NewFromInt(1000)))
		assert.True(t, s.Allocations[1].Amount.Equal(decimal.NewFromInt(200)))
		assert.True(t, s.Unapplied.IsZero())

		d1, _ := l.Document(gr1.DocumentID)
		d2, _ := l.Document(gr2.DocumentID)
		assert.True(t, d1.Outstanding().IsZero())
		assert.True(t, d2.Outstanding().Equal(decimal.NewFromInt(300)))
		assert.True(t, l.Outstanding("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(300)))
	})

	t.Run("overpayment becomes an advance", func(t *testing.T) {
		l := newLedgerWith(t, payable("GR-000001", day(1), 100))

		s, err := l.Apply(ctx, NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(150), day(2)))
		require.NoError(t, err)

		assert.True(t, s.Unapplied.Equal(decimal.NewFromInt(50)))
		assert.True(t, l.Advance("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(50)))
		assert.True(t, l.Balance("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(-50)))
	})

	t.Run("directed payment targets its document first", func(t *testing.T) {
		gr1 := payable("GR-000001", day(1), 100)
		gr2 := payable("GR-000002", day(2), 100)
		l := newLedgerWith(t, gr1, gr2)

		p := NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(130), day(2))
		p.TargetDocumentID = &gr2.DocumentID
		s, err := l.Apply(ctx, p)
		require.NoError(t, err)

		require.Len(t, s.Allocations, 2)
		assert.Equal(t, gr2.DocumentID, s.Allocations[0].DocumentID)
		assert.True(t, s.Allocations[0].Amount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, gr1.DocumentID, s.Allocations[1].DocumentID)
		assert.True(t, s.Allocations[1].Amount.Equal(decimal.NewFromInt(30)))
	})

	t.Run("same settlement applied twice is a no-op", func(t *testing.T) {
		l := newLedgerWith(t, payable("GR-000001", day(1), 100))
		p := NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(40), day(2))

		_, err := l.Apply(ctx, p)
		require.NoError(t, err)
		_, err = l.Apply(ctx, p)
		require.NoError(t, err)

		assert.True(t, l.Outstanding("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(60)))
		assert.Len(t, l.Settlements("supplier-1"), 1)
	})

	t.Run("recorded allocations are restored verbatim", func(t *testing.T) {
		gr1 := payable("GR-000001", day(1), 100)
		gr2 := payable("GR-000002", day(2), 100)
		l := newLedgerWith(t, gr1, gr2)

		p := NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(50), day(3))
		p.Allocations = []SettlementAllocation{{DocumentID: gr2.DocumentID, Number: gr2.Number, Amount: decimal.NewFromInt(50)}}
		_, err := l.Apply(ctx, p)
		require.NoError(t, err)

		d1, _ := l.Document(gr1.DocumentID)
		d2, _ := l.Document(gr2.DocumentID)
		assert.True(t, d1.Settled.IsZero())
		assert.True(t, d2.Settled.Equal(decimal.NewFromInt(50)))
	})

	t.Run("restoring against an unknown document fails", func(t *testing.T) {
		l := newLedgerWith(t)
		p := NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(50), day(3))
		p.Allocations = []SettlementAllocation{{DocumentID: uuid.New(), Amount: decimal.NewFromInt(50)}}

		_, err := l.Apply(ctx, p)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("invalid settlements are rejected", func(t *testing.T) {
		l := newLedgerWith(t)
		_, err := l.Apply(ctx, NewPayment("supplier-1", DirectionPayable, decimal.Zero, day(1)))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = l.Apply(ctx, NewPayment("", DirectionPayable, decimal.NewFromInt(1), day(1)))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("directions are kept apart", func(t *testing.T) {
		l := newLedgerWith(t, payable("GR-000001", day(1), 100))
		s, err := l.Apply(ctx, NewPayment("supplier-1", DirectionReceivable, decimal.NewFromInt(40), day(2)))
		require.NoError(t, err)

		assert.Empty(t, s.Allocations)
		assert.True(t, l.Outstanding("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(100)))
		assert.True(t, l.Advance("supplier-1", DirectionReceivable).Equal(decimal.NewFromInt(40)))
	})
}

func TestDebtLedger_RegisterDocument(t *testing.T) {
	t.Run("duplicate registration is ignored", func(t *testing.T) {
		d := payable("GR-000001", day(1), 100)
		l := newLedgerWith(t, d)

		added, err := l.RegisterDocument(d)
		require.NoError(t, err)
		assert.False(t, added)
		assert.True(t, l.Outstanding("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(100)))
	})

	t.Run("open documents are listed oldest first", func(t *testing.T) {
		late := payable("GR-000002", day(9), 10)
		early := payable("GR-000001", day(1), 10)
		l := newLedgerWith(t, late, early)

		open := l.OpenDocuments("supplier-1", DirectionPayable)
		require.Len(t, open, 2)
		assert.Equal(t, "GR-000001", open[0].Number)
	})

	t.Run("missing counterparty is rejected", func(t *testing.T) {
		l := newLedgerWith(t)
		d := payable("GR-000001", day(1), 10)
		d.CounterpartyID = ""
		_, err := l.RegisterDocument(d)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestDebtLedger_Revert(t *testing.T) {
	ctx := context.Background()
	gr := payable("GR-000001", day(1), 100)
	l := newLedgerWith(t, gr)

	s, err := l.Apply(ctx, NewPayment("supplier-1", DirectionPayable, decimal.NewFromInt(150), day(2)))
	require.NoError(t, err)
	require.True(t, l.Advance("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(50)))

	require.NoError(t, l.Revert(s.ID))
	assert.True(t, l.Outstanding("supplier-1", DirectionPayable).Equal(decimal.NewFromInt(100)))
	assert.True(t, l.Advance("supplier-1", DirectionPayable).IsZero())
	assert.Empty(t, l.Settlements("supplier-1"))

	assert.ErrorIs(t, l.Revert(s.ID), shared.ErrNotFound)
}

func TestDerivedSettlementID(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, DerivedSettlementID(id, "initial-payment"), DerivedSettlementID(id, "initial-payment"))
	assert.NotEqual(t, DerivedSettlementID(id, "initial-payment"), DerivedSettlementID(id, "credit"))
}
