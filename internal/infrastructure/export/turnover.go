// Package export renders ledger reports as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Turnover"
	EntriesSheet = "Movements"
	dateLayout   = "2006-01-02"
)

var (
	summaryHeadings = []any{"Date", "Opening", "Incoming", "Outgoing", "Closing"}
	entryHeadings   = []any{"Date", "Document", "Kind", "Delta"}
)

// WriteTurnoverXLSX writes report as a workbook with a per-day summary
// sheet and a sheet listing every movement. title names the item in the
// header row.
func WriteTurnoverXLSX(w io.Writer, report *inventory.TurnoverReport, title string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(EntriesSheet); err != nil {
		return err
	}

	header := fmt.Sprintf("%s @ %s, %s to %s", title, report.Key.WarehouseID,
		report.From.Format(dateLayout), report.To.Format(dateLayout))
	if err := f.SetCellValue(SummarySheet, "A1", header); err != nil {
		return err
	}
	if err := setRow(f, SummarySheet, 2, summaryHeadings); err != nil {
		return err
	}

	row, entryRow := 3, 2
	if err := setRow(f, EntriesSheet, 1, entryHeadings); err != nil {
		return err
	}
	for _, d := range report.Days {
		values := []any{
			d.Date.Format(dateLayout),
			d.Opening.InexactFloat64(),
			d.Incoming.InexactFloat64(),
			d.Outgoing.InexactFloat64(),
			d.Closing.InexactFloat64(),
		}
		if err := setRow(f, SummarySheet, row, values); err != nil {
			return err
		}
		row++

		for _, e := range d.Entries {
			values := []any{e.Date.Format(dateLayout), e.Number, e.Kind.String(), e.Delta.InexactFloat64()}
			if err := setRow(f, EntriesSheet, entryRow, values); err != nil {
				return err
			}
			entryRow++
		}
	}

	if err := f.SetColWidth(SummarySheet, "A", "A", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(EntriesSheet, "A", "C", 20); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
