package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerdock/ledgerdock/internal/extract"
	"github.com/ledgerdock/ledgerdock/internal/lifecycle"
	"github.com/ledgerdock/ledgerdock/internal/model"
)

// insertBatchSize bounds one bulk-insert transaction so progress counters
// move while large statements stream in.
const insertBatchSize = 50

// JobStatus returns a read-only snapshot of the job. Polling it is free of
// side effects.
func (s *Service) JobStatus(ctx context.Context, id string) (*model.Job, error) {
	return s.store.Job(ctx, id)
}

// ListJobs returns the owner's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, ownerID string) ([]*model.Job, error) {
	return s.store.JobsByOwner(ctx, ownerID)
}

// DeleteJob removes the job, all of its transactions and the stored file.
// Irreversible. Safe to race with in-flight extraction: once the job row is
// gone, late extraction results are discarded by ProcessJob's existence
// checks.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	job, err := s.store.Job(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if err := s.blobs.DeleteRaw(ctx, job.ObjectKey); err != nil {
		// The metadata is authoritative; an orphaned blob is only noise.
		log.Printf("delete raw object %s: %v", job.ObjectKey, err)
	}
	return nil
}

// ProcessJob runs the extraction pipeline for one queued job. It is invoked
// by the worker with the raw payload it was enqueued with.
//
// Per-row parse failures are folded into failed_items; only an unreadable
// file or a storage fault fails the whole job, and already-persisted
// transactions are preserved. A job deleted mid-flight makes ProcessJob a
// no-op.
func (s *Service) ProcessJob(ctx context.Context, jobID, objectKey, filename string) error {
	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("job %s gone before processing, discarding", jobID)
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		log.Printf("job %s already %s, discarding", jobID, job.Status)
		return nil
	}
	if err := lifecycle.Advance(job, model.JobProcessing, "extracting transactions"); err != nil {
		return err
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	fail := func(code, msg string) error {
		if err := lifecycle.Fail(job, code, msg); err != nil {
			return err
		}
		return s.store.UpdateJob(ctx, job)
	}

	data, err := s.blobs.DownloadRaw(ctx, objectKey)
	if err != nil {
		return fail("storage_error", "uploaded file could not be read back")
	}
	adapter, err := s.registry.For(filename)
	if err != nil {
		return fail("unsupported_format", fmt.Sprintf("no extraction support for %q yet", filename))
	}
	result, err := adapter.Extract(ctx, extract.Input{Filename: filename, MimeType: contentTypeFor(job.FileType), Data: data})
	if err != nil {
		return fail("extraction_failed", "file could not be parsed; it may be corrupt")
	}

	total := len(result.Transactions) + len(result.RowErrors)
	if err := lifecycle.SetTotal(job, total); err != nil {
		return fail("internal_error", "extraction produced inconsistent totals")
	}
	if len(result.RowErrors) > 0 {
		if err := lifecycle.RecordFailed(job, len(result.RowErrors)); err != nil {
			return fail("internal_error", "extraction produced inconsistent totals")
		}
		job.StatusMessage = fmt.Sprintf("%d of %d rows could not be parsed", len(result.RowErrors), total)
	}
	if job.PeriodStart == nil {
		job.PeriodStart = result.PeriodStart
		job.PeriodEnd = result.PeriodEnd
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if result.Document != nil {
		result.Document.OwnerID = job.OwnerID
		result.Document.ObjectKey = job.ObjectKey
		result.Document.CreatedAt = time.Now().UTC()
		if err := s.store.CreateDocument(ctx, result.Document); err != nil {
			return fail("storage_error", "extracted document could not be stored")
		}
	}

	for start := 0; start < len(result.Transactions); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(result.Transactions) {
			end = len(result.Transactions)
		}
		batch := result.Transactions[start:end]
		now := time.Now().UTC()
		for _, tx := range batch {
			tx.ID = uuid.NewString()
			tx.JobID = job.ID
			tx.SyncStatus = model.SyncNone
			tx.CreatedAt = now
			tx.UpdatedAt = now
		}
		if err := s.store.BulkInsert(ctx, job.ID, batch); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// Job deleted while we were extracting; the delete wins.
				log.Printf("job %s deleted mid-extraction, discarding %d rows", job.ID, len(batch))
				return nil
			}
			return fail("storage_error", "transactions could not be stored")
		}
		if err := lifecycle.RecordProcessed(job, len(batch)); err != nil {
			return fail("internal_error", "extraction produced inconsistent totals")
		}
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
	}

	needsReview := lifecycle.NeedsReview(result.Transactions, s.opts.AutoAcceptConfidence)
	if err := lifecycle.Finish(job, needsReview); err != nil {
		return err
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	log.Printf("job %s finished %s: %d processed, %d failed", job.ID, job.Status, job.ProcessedItems, job.FailedItems)
	return nil
}

// CreateAccount registers a bank account for an owner.
func (s *Service) CreateAccount(ctx context.Context, account *model.BankAccount) (*model.BankAccount, error) {
	if account.OwnerID == "" || account.AccountName == "" {
		return nil, fmt.Errorf("%w: owner and account name are required", model.ErrValidation)
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now().UTC()
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// ListAccounts returns the owner's bank accounts.
func (s *Service) ListAccounts(ctx context.Context, ownerID string) ([]*model.BankAccount, error) {
	return s.store.AccountsByOwner(ctx, ownerID)
}
