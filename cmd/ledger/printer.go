package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/erp/stockledger/internal/infrastructure/masterdata"
)

// printer writes command results as aligned text or, with -json, as JSON
type printer struct {
	w      io.Writer
	json   bool
	master *masterdata.Registry
}

func newPrinter(w io.Writer, asJSON bool, master *masterdata.Registry) *printer {
	return &printer{w: w, json: asJSON, master: master}
}

// emit prints v as JSON, or calls table to print it as text
func (p *printer) emit(v any, table func(tw *tabwriter.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func row(w io.Writer, cols ...any) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}
