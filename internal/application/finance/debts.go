package finance

import (
	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// DebtsOf derives the debts a confirmed document opens and the settlements
// it raises. Receipts generated by an inventory count have no supplier and
// open no debt.
func DebtsOf(doc inventory.Document) ([]finance.DebtDocument, []*finance.Settlement) {
	h := doc.Head()
	debt := func(counterpartyID string, dir finance.Direction, amount decimal.Decimal) finance.DebtDocument {
		return finance.DebtDocument{
			DocumentID:     h.ID,
			Number:         h.Number,
			CounterpartyID: counterpartyID,
			Direction:      dir,
			Date:           h.Date,
			Amount:         amount,
		}
	}
	derived := func(purpose string, kind finance.SettlementKind, counterpartyID string, dir finance.Direction, amount decimal.Decimal) *finance.Settlement {
		id := h.ID
		return &finance.Settlement{
			ID:               finance.DerivedSettlementID(h.ID, purpose),
			Kind:             kind,
			CounterpartyID:   counterpartyID,
			Direction:        dir,
			Amount:           amount,
			Date:             h.Date,
			SourceDocumentID: &id,
			Note:             h.Number,
		}
	}

	switch d := doc.(type) {
	case *inventory.GoodsReceipt:
		if d.SupplierID == "" || !d.Total().IsPositive() {
			return nil, nil
		}
		debts := []finance.DebtDocument{debt(d.SupplierID, finance.DirectionPayable, d.Total())}
		if !d.PaidAmount.IsPositive() {
			return debts, nil
		}
		paid := derived(purposeInitialPayment, finance.SettlementPayment, d.SupplierID, finance.DirectionPayable, d.PaidAmount)
		paid.TargetDocumentID = paid.SourceDocumentID
		return debts, []*finance.Settlement{paid}

	case *inventory.SalesInvoice:
		if d.ClientID == "" || !d.Revenue().IsPositive() {
			return nil, nil
		}
		return []finance.DebtDocument{debt(d.ClientID, finance.DirectionReceivable, d.Revenue())}, nil

	case *inventory.GoodsReturn:
		if d.SupplierID == "" || !d.Value().IsPositive() {
			return nil, nil
		}
		return nil, []*finance.Settlement{
			derived(purposeCredit, finance.SettlementCredit, d.SupplierID, finance.DirectionPayable, d.Value()),
		}

	case *inventory.SalesReturn:
		if d.ClientID == "" || !d.CreditAmount().IsPositive() {
			return nil, nil
		}
		credit := derived(purposeCredit, finance.SettlementCredit, d.ClientID, finance.DirectionReceivable, d.CreditAmount())
		credit.TargetDocumentID = d.SalesInvoiceID
		return nil, []*finance.Settlement{credit}
	}
	return nil, nil
}
