package inventory

import (
	"context"

	"github.com/google/uuid"
)

// DocumentFilter narrows document listings; zero values match everything
type DocumentFilter struct {
	Kind   DocumentKind
	Status DocumentStatus
}

// Matches reports whether doc passes the filter
func (f DocumentFilter) Matches(doc Document) bool {
	if f.Kind != "" && doc.Kind() != f.Kind {
		return false
	}
	if f.Status != "" && doc.Head().Status != f.Status {
		return false
	}
	return true
}

// DocumentRepository persists documents. Returned documents are copies.
type DocumentRepository interface {
	// FindByID returns shared.ErrNotFound when the id is unknown
	FindByID(ctx context.Context, id uuid.UUID) (Document, error)

	// FindAll lists documents ordered by date then number
	FindAll(ctx context.Context, filter DocumentFilter) ([]Document, error)

	// FindConfirmed lists confirmed documents in replay order (date, confirm sequence)
	FindConfirmed(ctx context.Context) ([]Document, error)

	// FindConfirmedAfter lists confirmed documents with a confirm sequence
	// above seq, ordered by sequence
	FindConfirmedAfter(ctx context.Context, seq int64) ([]Document, error)

	// LatestConfirmSeq returns the highest confirm sequence handed out
	LatestConfirmSeq(ctx context.Context) (int64, error)

	// NextNumber reserves the next document number of kind
	NextNumber(ctx context.Context, kind DocumentKind) (string, error)

	// Save creates or updates a document
	Save(ctx context.Context, doc Document) error

	// SaveAll stores every document atomically. Confirmed documents without
	// a confirm sequence get the next ones, in slice order; sequences follow
	// commit order across every writer.
	SaveAll(ctx context.Context, docs []Document) error

	// Delete removes a document
	Delete(ctx context.Context, id uuid.UUID) error
}

// BatchSnapshotRepository persists the live batch store so drift against a
// replay can be detected on startup.
type BatchSnapshotRepository interface {
	// ReplaceKeys overwrites the batches of the given keys
	ReplaceKeys(ctx context.Context, keys []StockKey, batches []StockBatch) error

	// ReplaceAll overwrites the whole snapshot
	ReplaceAll(ctx context.Context, batches []StockBatch) error

	// LoadAll returns the stored snapshot
	LoadAll(ctx context.Context) ([]StockBatch, error)
}
