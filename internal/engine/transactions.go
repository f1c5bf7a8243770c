package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/lifecycle"
	"github.com/ledgerdock/ledgerdock/internal/model"
	"github.com/ledgerdock/ledgerdock/internal/syncstate"
)

// ListTransactions returns the job's transactions in insertion order with
// their source documents attached.
func (s *Service) ListTransactions(ctx context.Context, jobID string) ([]*model.Transaction, error) {
	if _, err := s.store.Job(ctx, jobID); err != nil {
		return nil, err
	}
	txs, err := s.store.TransactionsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.attachDocuments(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// GroupedTransactions returns the job's transactions collapsed to one display
// record per source document.
func (s *Service) GroupedTransactions(ctx context.Context, jobID string) ([]*model.TransactionGroup, error) {
	txs, err := s.ListTransactions(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return model.GroupByDocument(txs), nil
}

func (s *Service) attachDocuments(ctx context.Context, txs []*model.Transaction) error {
	docs := make(map[string]*model.Document)
	for _, tx := range txs {
		if tx.DocumentID == nil || *tx.DocumentID == "" {
			continue
		}
		doc, ok := docs[*tx.DocumentID]
		if !ok {
			loaded, err := s.store.Document(ctx, *tx.DocumentID)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					continue
				}
				return fmt.Errorf("document %s: %w", *tx.DocumentID, err)
			}
			doc = loaded
			docs[*tx.DocumentID] = doc
		}
		tx.Document = doc
	}
	return nil
}

// UpdateTransaction applies a partial edit. Editing never confirms; it does
// mark a previously synced row dirty so the sync tracker sees the drift.
func (s *Service) UpdateTransaction(ctx context.Context, id string, upd model.TransactionUpdate) (*model.Transaction, error) {
	if err := upd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	tx, err := s.store.Transaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Empty() {
		return tx, nil
	}
	if upd.Category != nil {
		tx.Category = *upd.Category
	}
	if upd.Subcategory != nil {
		tx.Subcategory = *upd.Subcategory
	}
	if upd.UserNotes != nil {
		tx.UserNotes = *upd.UserNotes
	}
	if upd.IsDebit != nil {
		tx.IsDebit = upd.IsDebit
	}
	if upd.Date != nil {
		tx.Date = upd.Date.UTC()
	}
	if upd.Amount != nil {
		tx.Amount = *upd.Amount
	}
	tx.UpdatedAt = time.Now().UTC()
	syncstate.MarkDirty(tx)
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return tx, nil
}

// ConfirmTransaction marks the row user-confirmed. Idempotent: confirming
// twice is the same as once. When the confirmation resolves the last
// unreviewed row of a reviewing job, the job closes to completed.
func (s *Service) ConfirmTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	tx, err := s.store.Transaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.UserConfirmed {
		tx.UserConfirmed = true
		tx.UpdatedAt = time.Now().UTC()
		syncstate.MarkDirty(tx)
		if err := s.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("confirm transaction: %w", err)
		}
	}
	if err := s.closeJobIfReviewed(ctx, tx.JobID); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Service) closeJobIfReviewed(ctx context.Context, jobID string) error {
	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobReviewing {
		return nil
	}
	txs, err := s.store.TransactionsByJob(ctx, jobID)
	if err != nil {
		return err
	}
	if lifecycle.NeedsReview(txs, s.opts.AutoAcceptConfidence) {
		return nil
	}
	if err := lifecycle.Advance(job, model.JobCompleted, "all transactions reviewed"); err != nil {
		return err
	}
	return s.store.UpdateJob(ctx, job)
}

// DeleteTransaction removes a single row.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := s.store.Transaction(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteTransaction(ctx, id)
}

// DeleteGroup removes every transaction in the job that shares the document.
// Invoices decompose into several line-item rows; they go together or not at
// all. The document row itself is left orphaned for separate deletion.
func (s *Service) DeleteGroup(ctx context.Context, jobID, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("%w: documentId is required", model.ErrValidation)
	}
	if _, err := s.store.Job(ctx, jobID); err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteGroup(ctx, jobID, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete group: %w", err)
	}
	return deleted, nil
}
