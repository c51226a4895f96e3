package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func sampleReport() *inventory.TurnoverReport {
	ten := decimal.NewFromInt(10)
	four := decimal.NewFromInt(4)
	return &inventory.TurnoverReport{
		Key:     inventory.NewStockKey(inventory.ProductRef("flour"), "W1"),
		From:    day(1),
		To:      day(2),
		Opening: decimal.Zero,
		Closing: decimal.NewFromInt(6),
		Days: []inventory.TurnoverDay{
			{
				Date: day(1), Opening: decimal.Zero, Incoming: ten, Outgoing: decimal.Zero, Closing: ten,
				Entries: []inventory.TurnoverEntry{
					{DocumentID: uuid.New(), Number: "GR-000001", Kind: inventory.KindGoodsReceipt, Date: day(1), Delta: ten},
				},
			},
			{
				Date: day(2), Opening: ten, Incoming: decimal.Zero, Outgoing: four, Closing: decimal.NewFromInt(6),
				Entries: []inventory.TurnoverEntry{
					{DocumentID: uuid.New(), Number: "WO-000001", Kind: inventory.KindWriteOff, Date: day(2), Delta: four.Neg()},
				},
			},
		},
	}
}

func TestWriteTurnoverXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTurnoverXLSX(&buf, sampleReport(), "Wheat flour"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, EntriesSheet}, f.GetSheetList())

	t.Run("summary rows", func(t *testing.T) {
		rows, err := f.GetRows(SummarySheet)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, "Wheat flour @ W1, 2024-05-01 to 2024-05-02", rows[0][0])
		assert.Equal(t, []string{"Date", "Opening", "Incoming", "Outgoing", "Closing"}, rows[1])
		assert.Equal(t, []string{"2024-05-01", "0", "10", "0", "10"}, rows[2])
		assert.Equal(t, []string{"2024-05-02", "10", "0", "4", "6"}, rows[3])
	})

	t.Run("movement rows", func(t *testing.T) {
		rows, err := f.GetRows(EntriesSheet)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"2024-05-01", "GR-000001", "GOODS_RECEIPT", "10"}, rows[1])
		assert.Equal(t, []string{"2024-05-02", "WO-000001", "WRITE_OFF", "-4"}, rows[2])
	})
}

func TestWriteTurnoverXLSX_NoDays(t *testing.T) {
	report := sampleReport()
	report.Days = nil

	var buf bytes.Buffer
	require.NoError(t, WriteTurnoverXLSX(&buf, report, "flour"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(EntriesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
