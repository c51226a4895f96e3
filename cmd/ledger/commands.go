package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	financeapp "github.com/erp/stockledger/internal/application/finance"
	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/export"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type command struct {
	run func(ctx context.Context, a *app, out *printer, args []string) error
}

var commands = map[string]command{
	"create":      {runCreate},
	"confirm":     {runConfirm},
	"delete":      {runDelete},
	"documents":   {runDocuments},
	"show":        {runShow},
	"on-hand":     {runOnHand},
	"batches":     {runBatches},
	"stock-as-of": {runStockAsOf},
	"producible":  {runProducible},
	"turnover":    {runTurnover},
	"pay":         {runPay},
	"balance":     {runBalance},
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: -%s is required", shared.ErrInvalidInput, name)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: -%s %q is not a YYYY-MM-DD date", shared.ErrInvalidInput, name, s)
	}
	return t, nil
}

func parseItemAndWarehouse(a *app, item, warehouse string) (inventory.ItemRef, error) {
	ref, err := inventory.ParseItemRef(item)
	if err != nil {
		return inventory.ItemRef{}, err
	}
	if err := a.master.ValidateItem(ref); err != nil {
		return inventory.ItemRef{}, err
	}
	if err := a.master.ValidateWarehouse(warehouse); err != nil {
		return inventory.ItemRef{}, err
	}
	return ref, nil
}

// readDraftRequests reads one document or a list of documents from a YAML file
func readDraftRequests(path string) ([]ledger.DraftRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []ledger.DraftRequest
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single ledger.DraftRequest
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, path, err)
	}
	return []ledger.DraftRequest{single}, nil
}

func runCreate(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("create")
	file := fs.String("f", "", "YAML file with the documents to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: -f is required", shared.ErrInvalidInput)
	}
	reqs, err := readDraftRequests(*file)
	if err != nil {
		return err
	}

	created := make([]ledger.DocumentSummary, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		// invoices may be referenced by number
		if req.SalesInvoice != "" {
			if _, err := uuid.Parse(req.SalesInvoice); err != nil {
				inv, err := a.ledger.FindDocument(ctx, req.SalesInvoice)
				if err != nil {
					return fmt.Errorf("document %d: %w", i+1, err)
				}
				req.SalesInvoice = inv.Head().ID.String()
			}
		}
		doc, err := req.ToDocument()
		if err != nil {
			return fmt.Errorf("document %d: %w", i+1, err)
		}
		if err := a.ledger.CreateDraft(ctx, doc); err != nil {
			return fmt.Errorf("document %d: %w", i+1, err)
		}
		created = append(created, ledger.ToDocumentSummary(doc))
	}
	return printSummaries(out, created)
}

func runConfirm(ctx context.Context, a *app, out *printer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: confirm <id|number>...", shared.ErrInvalidInput)
	}
	confirmed := make([]ledger.DocumentSummary, 0, len(args))
	var err error
	for _, ref := range args {
		var doc inventory.Document
		if doc, err = a.ledger.FindDocument(ctx, ref); err != nil {
			break
		}
		if err = a.ledger.Confirm(ctx, doc.Head().ID); err != nil {
			err = fmt.Errorf("%s: %w", doc.Head().Number, err)
			break
		}
		if doc, err = a.ledger.GetDocument(ctx, doc.Head().ID); err != nil {
			break
		}
		confirmed = append(confirmed, ledger.ToDocumentSummary(doc))
	}
	if perr := printSummaries(out, confirmed); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

func runDelete(ctx context.Context, a *app, out *printer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: delete <id|number>", shared.ErrInvalidInput)
	}
	doc, err := a.ledger.FindDocument(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.ledger.DeleteDraft(ctx, doc.Head().ID); err != nil {
		return err
	}
	return printSummaries(out, []ledger.DocumentSummary{ledger.ToDocumentSummary(doc)})
}

func runDocuments(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("documents")
	kind := fs.String("kind", "", "Only documents of this kind (e.g. GOODS_RECEIPT)")
	status := fs.String("status", "", "Only DRAFT or CONFIRMED documents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := inventory.DocumentFilter{Kind: inventory.DocumentKind(*kind), Status: inventory.DocumentStatus(*status)}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidInput, *kind)
	}
	docs, err := a.ledger.ListDocuments(ctx, filter)
	if err != nil {
		return err
	}
	summaries := make([]ledger.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, ledger.ToDocumentSummary(d))
	}
	return printSummaries(out, summaries)
}

func printSummaries(out *printer, docs []ledger.DocumentSummary) error {
	return out.emit(docs, func(tw *tabwriter.Writer) {
		row(tw, "NUMBER", "KIND", "DATE", "STATUS", "ID")
		for _, d := range docs {
			row(tw, d.Number, d.Kind, d.Date.Format(time.DateOnly), d.Status, d.ID)
		}
	})
}

func runShow(ctx context.Context, a *app, out *printer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: show <id|number>", shared.ErrInvalidInput)
	}
	doc, err := a.ledger.FindDocument(ctx, args[0])
	if err != nil {
		return err
	}
	// documents have too many shapes for a table
	out.json = true
	return out.emit(struct {
		Kind     inventory.DocumentKind `json:"kind"`
		Document inventory.Document     `json:"document"`
	}{doc.Kind(), doc}, nil)
}

func runOnHand(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("on-hand")
	item := fs.String("item", "", "Item reference, product:<id> or dish:<id>")
	warehouse := fs.String("warehouse", "", "Warehouse id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := parseItemAndWarehouse(a, *item, *warehouse)
	if err != nil {
		return err
	}
	qty := a.ledger.OnHandQuantity(ref, *warehouse)
	return out.emit(map[string]any{"item": ref.String(), "warehouse_id": *warehouse, "quantity": qty},
		func(tw *tabwriter.Writer) { row(tw, qty) })
}

func runBatches(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("batches")
	item := fs.String("item", "", "Item reference, product:<id> or dish:<id>")
	warehouse := fs.String("warehouse", "", "Warehouse id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := parseItemAndWarehouse(a, *item, *warehouse)
	if err != nil {
		return err
	}
	return printBatches(out, a.ledger.BatchesFor(ref, *warehouse))
}

func printBatches(out *printer, batches []inventory.StockBatch) error {
	return out.emit(batches, func(tw *tabwriter.Writer) {
		row(tw, "BATCH", "ITEM", "WAREHOUSE", "RECEIVED", "QUANTITY", "UNIT COST", "VALUE")
		for _, b := range batches {
			row(tw, b.ID, b.Item, b.WarehouseID, b.ReceiptDate.Format(time.DateOnly),
				b.Quantity, b.UnitCost.StringFixed(4), b.Value().StringFixed(2))
		}
	})
}

func runStockAsOf(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("stock-as-of")
	date := fs.String("date", "", "Day to report, YYYY-MM-DD")
	warehouse := fs.String("warehouse", "", "Only this warehouse")
	if err := fs.Parse(args); err != nil {
		return err
	}
	asOf, err := parseDate("date", *date)
	if err != nil {
		return err
	}
	store, err := a.ledger.StockAsOf(ctx, asOf)
	if err != nil {
		return err
	}
	batches := make([]inventory.StockBatch, 0)
	for _, b := range store.All() {
		if *warehouse == "" || b.WarehouseID == *warehouse {
			batches = append(batches, b)
		}
	}
	return printBatches(out, batches)
}

func runProducible(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("producible")
	dish := fs.String("dish", "", "Dish id")
	warehouse := fs.String("warehouse", "", "Warehouse id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	qty, err := a.ledger.ProducibleQuantity(*dish, *warehouse)
	if err != nil {
		return err
	}
	return out.emit(map[string]any{"dish": *dish, "warehouse_id": *warehouse, "producible": qty},
		func(tw *tabwriter.Writer) { row(tw, qty) })
}

func runTurnover(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("turnover")
	item := fs.String("item", "", "Item reference, product:<id> or dish:<id>")
	warehouse := fs.String("warehouse", "", "Warehouse id")
	fromFlag := fs.String("from", "", "First day, YYYY-MM-DD")
	toFlag := fs.String("to", "", "Last day, YYYY-MM-DD")
	xlsx := fs.String("xlsx", "", "Write the report to this .xlsx file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := inventory.ParseItemRef(*item)
	if err != nil {
		return err
	}
	from, err := parseDate("from", *fromFlag)
	if err != nil {
		return err
	}
	to, err := parseDate("to", *toFlag)
	if err != nil {
		return err
	}
	report, err := a.ledger.Turnover(ctx, ref, *warehouse, from, to)
	if err != nil {
		return err
	}

	if *xlsx != "" {
		return writeTurnoverFile(*xlsx, report, fmt.Sprintf("%s @ %s", a.master.ItemName(ref), *warehouse))
	}
	return out.emit(report, func(tw *tabwriter.Writer) {
		row(tw, "DATE", "OPENING", "IN", "OUT", "CLOSING", "DOCUMENTS")
		for _, d := range report.Days {
			numbers := ""
			for i, e := range d.Entries {
				if i > 0 {
					numbers += " "
				}
				numbers += fmt.Sprintf("%s(%s)", e.Number, e.Delta)
			}
			row(tw, d.Date.Format(time.DateOnly), d.Opening, d.Incoming, d.Outgoing, d.Closing, numbers)
		}
	})
}

func writeTurnoverFile(path string, report *inventory.TurnoverReport, title string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return export.WriteTurnoverXLSX(f, report, title)
}

func runPay(ctx context.Context, a *app, out *printer, args []string) error {
	fs := newFlagSet("pay")
	req := financeapp.RecordPaymentRequest{}
	fs.StringVar(&req.CounterpartyID, "counterparty", "", "Supplier or client id")
	fs.StringVar(&req.Direction, "direction", "", "PAYABLE (we pay a supplier) or RECEIVABLE (a client pays us)")
	fs.StringVar(&req.Amount, "amount", "", "Amount paid")
	fs.StringVar(&req.Date, "date", time.Now().Format(time.DateOnly), "Payment day, YYYY-MM-DD")
	fs.StringVar(&req.Note, "note", "", "Free text")
	target := fs.String("target", "", "Pay this document first (id or number)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target != "" {
		doc, err := a.ledger.FindDocument(ctx, *target)
		if err != nil {
			return err
		}
		req.TargetDocumentID = doc.Head().ID.String()
	}

	s, err := a.debts.RecordPayment(ctx, req)
	if err != nil {
		return err
	}
	return out.emit(s, func(tw *tabwriter.Writer) {
		row(tw, "DOCUMENT", "APPLIED")
		for _, al := range s.Allocations {
			row(tw, al.Number, al.Amount)
		}
		if s.Unapplied.IsPositive() {
			row(tw, "(advance)", s.Unapplied)
		}
	})
}

func runBalance(ctx context.Context, a *app, out *printer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: balance <counterparty>", shared.ErrInvalidInput)
	}
	st := a.debts.Statement(args[0])
	return out.emit(st, func(tw *tabwriter.Writer) {
		printStatement(tw, st)
	})
}

func printStatement(w io.Writer, st *financeapp.CounterpartyStatement) {
	row(w, "DIRECTION", "OUTSTANDING", "ADVANCE", "BALANCE")
	for _, side := range st.Sides {
		row(w, side.Direction, side.Outstanding, side.Advance, side.Balance)
	}
	row(w)
	row(w, "OPEN DOCUMENT", "DATE", "AMOUNT", "SETTLED")
	for _, side := range st.Sides {
		for _, d := range side.Open {
			row(w, d.Number, d.Date.Format(time.DateOnly), d.Amount, d.Settled)
		}
	}
}
