// Package models contains the GORM persistence models of the ledger. They
// are kept apart from the domain types, which carry no ORM tags; each model
// converts to and from its domain value.
//
//   - base.go: common id, timestamps and version columns
//   - document.go: ledger documents, stored as a typed JSON payload
//   - stock_batch.go: the live batch snapshot
//   - settlement.go: counterparty payments and credits with their allocations
//   - counter.go: confirmation sequence and document numbering
package models
