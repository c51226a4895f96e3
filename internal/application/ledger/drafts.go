package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateDraft stores a new draft. A document without a number gets the
// next one of its kind (GR-000001, WO-000001, ...) from the repository, so
// processes sharing a database never hand out the same number.
func (s *LedgerService) CreateDraft(ctx context.Context, doc inventory.Document) error {
	h := doc.Head()
	if err := h.EnsureDraft(); err != nil {
		return err
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if _, err := s.docs.FindByID(ctx, h.ID); err == nil {
		return fmt.Errorf("%w: document %s", shared.ErrAlreadyExists, h.ID)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	if h.Number == "" {
		number, err := s.docs.NextNumber(ctx, doc.Kind())
		if err != nil {
			return err
		}
		h.Number = number
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return err
	}
	logger.WithLogger(ctx, s.logger).Debug("Draft created",
		zap.String("document_id", h.ID.String()),
		zap.String("kind", doc.Kind().String()),
		zap.String("number", h.Number),
	)
	return nil
}

// UpdateDraft replaces a stored draft with doc, keeping its number and
// creation time. Confirmed documents are rejected with ErrImmutableDocument.
func (s *LedgerService) UpdateDraft(ctx context.Context, doc inventory.Document) error {
	h := doc.Head()
	unlock, err := s.lockDocument(ctx, h.ID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.docs.FindByID(ctx, h.ID)
	if err != nil {
		return err
	}
	if err := current.Head().EnsureDraft(); err != nil {
		return err
	}
	if current.Kind() != doc.Kind() {
		return fmt.Errorf("%w: %s cannot become a %s", shared.ErrInvalidInput, current.Head().Number, doc.Kind())
	}
	if err := h.EnsureDraft(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	h.Number = current.Head().Number
	h.CreatedAt = current.Head().CreatedAt
	h.Version = current.Head().Version + 1
	h.Touch()
	return s.docs.Save(ctx, doc)
}

// DeleteDraft removes a draft. Confirmed documents are rejected with
// ErrImmutableDocument.
func (s *LedgerService) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	unlock, err := s.lockDocument(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := current.Head().EnsureDraft(); err != nil {
		return err
	}
	return s.docs.Delete(ctx, id)
}

func (s *LedgerService) lockDocument(ctx context.Context, id uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	return s.locker.Lock(lockCtx, documentLockName(id))
}
