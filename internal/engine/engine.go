// Package engine orchestrates the ingestion job lifecycle: the duplicate
// gate, job creation, extraction application, transaction mutation,
// reconciliation matching and spreadsheet sync tracking. The HTTP layer and
// the worker are thin shells over this service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerdock/ledgerdock/internal/dedup"
	"github.com/ledgerdock/ledgerdock/internal/extract"
	"github.com/ledgerdock/ledgerdock/internal/lifecycle"
	"github.com/ledgerdock/ledgerdock/internal/model"
	"github.com/ledgerdock/ledgerdock/internal/reconcile"
	"github.com/ledgerdock/ledgerdock/internal/syncstate"
)

// Options carries the engine tunables.
type Options struct {
	MaxUploadBytes       int64
	SimilarityThreshold  float64
	AutoAcceptConfidence float64
	MatchAmountTolerance float64
	MatchDateWindowDays  int
	MatchMinScore        float64
	SignedURLTTL         time.Duration
}

// Service is the ingestion and reconciliation engine.
type Service struct {
	store    Store
	blobs    BlobStore
	queue    Enqueuer
	registry *extract.Registry
	detector *dedup.Detector
	matcher  *reconcile.Matcher
	exporter *syncstate.Exporter
	opts     Options
}

// New wires the engine. target may be nil; exports then always fall back to
// CSV.
func New(store Store, blobs BlobStore, queue Enqueuer, registry *extract.Registry, target syncstate.TargetClient, opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.5
	}
	if opts.AutoAcceptConfidence <= 0 {
		opts.AutoAcceptConfidence = 0.8
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 10 * time.Minute
	}
	s := &Service{
		store:    store,
		blobs:    blobs,
		queue:    queue,
		registry: registry,
		exporter: syncstate.NewExporter(target),
		opts:     opts,
	}
	s.detector = dedup.New(store, opts.SimilarityThreshold)
	s.matcher = reconcile.New(&matcherStore{store: store}, reconcile.Config{
		AmountTolerance: opts.MatchAmountTolerance,
		DateWindowDays:  opts.MatchDateWindowDays,
		MinScore:        opts.MatchMinScore,
	})
	return s
}

// DuplicateError is the gated (not failed) outcome of the duplicate detector.
type DuplicateError struct {
	Candidate *model.DuplicateCandidate
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate upload: %s of job %s", e.Candidate.MatchType, e.Candidate.ExistingJobID)
}

// Unwrap lets errors.Is(err, model.ErrDuplicate) work.
func (e *DuplicateError) Unwrap() error { return model.ErrDuplicate }

// UploadRequest describes one submitted file.
type UploadRequest struct {
	OwnerID       string
	JobType       model.JobType
	Filename      string
	Data          []byte
	BankAccountID *string
	// Force bypasses the duplicate gate. It is an explicit, audited override.
	Force bool
}

var allowedExtensions = map[model.JobType]map[string]bool{
	model.JobTypeSpreadsheet:  {"csv": true, "xlsx": true, "xls": true},
	model.JobTypeInvoiceBatch: {"jpg": true, "jpeg": true, "png": true, "pdf": true},
}

func (s *Service) validateUpload(req UploadRequest) error {
	if req.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", model.ErrValidation)
	}
	if !req.JobType.IsValid() {
		return fmt.Errorf("%w: unknown job type %q", model.ErrValidation, req.JobType)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: empty file", model.ErrValidation)
	}
	if int64(len(req.Data)) > s.opts.MaxUploadBytes {
		return fmt.Errorf("%w: file exceeds limit (%d bytes)", model.ErrValidation, s.opts.MaxUploadBytes)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if !allowedExtensions[req.JobType][ext] {
		return fmt.Errorf("%w: file type %q not allowed for %s jobs", model.ErrValidation, ext, req.JobType)
	}
	return nil
}

// Submit validates the upload, runs the duplicate gate, stores the raw bytes,
// creates the job and enqueues extraction. It returns as soon as the job is
// accepted; callers poll JobStatus for progress.
func (s *Service) Submit(ctx context.Context, req UploadRequest) (*model.Job, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}
	if req.BankAccountID != nil && *req.BankAccountID != "" {
		if _, err := s.store.Account(ctx, *req.BankAccountID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown bank account %q", model.ErrValidation, *req.BankAccountID)
			}
			return nil, fmt.Errorf("account lookup: %w", err)
		}
	}
	hash := dedup.HashBytes(req.Data)

	// Pre-parse spreadsheets so tiers 2 and 3 have the covered date range and
	// the candidate row set. Parse failures are ignored here; the worker will
	// surface them on the job itself.
	upload := dedup.Upload{
		Filename:      req.Filename,
		ContentHash:   hash,
		BankAccountID: req.BankAccountID,
	}
	if req.JobType == model.JobTypeSpreadsheet && s.registry != nil {
		if adapter, err := s.registry.For(req.Filename); err == nil {
			if res, err := adapter.Extract(ctx, extract.Input{Filename: req.Filename, Data: req.Data}); err == nil {
				upload.Parsed = res.Transactions
				upload.PeriodStart = res.PeriodStart
				upload.PeriodEnd = res.PeriodEnd
			}
		}
	}

	if !req.Force {
		cand, err := s.detector.Check(ctx, req.OwnerID, upload)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if cand != nil {
			return nil, &DuplicateError{Candidate: cand}
		}
	} else {
		log.Printf("duplicate gate bypassed by force for owner %s file %q", req.OwnerID, req.Filename)
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:               uuid.NewString(),
		OwnerID:          req.OwnerID,
		Type:             req.JobType,
		FileType:         strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), ".")),
		OriginalFilename: filepath.Base(req.Filename),
		ContentHash:      hash,
		ObjectKey:        fmt.Sprintf("uploads/%s/%s", uuid.NewString(), filepath.Base(req.Filename)),
		Forced:           req.Force,
		Status:           model.JobReceived,
		StatusMessage:    "upload received",
		BankAccountID:    req.BankAccountID,
		PeriodStart:      upload.PeriodStart,
		PeriodEnd:        upload.PeriodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.blobs.UploadRaw(ctx, job.ObjectKey, req.Data, contentTypeFor(job.FileType)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			// Lost the race against a simultaneous identical upload; report
			// it exactly like a tier-1 hit.
			cand := &model.DuplicateCandidate{MatchType: model.MatchExact}
			if existing, lookupErr := s.store.JobByContentHash(ctx, req.OwnerID, hash); lookupErr == nil {
				cand.ExistingJobID = existing.ID
			}
			return nil, &DuplicateError{Candidate: cand}
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	// The job must be persisted as queued before the task exists: a worker
	// that dequeues immediately would otherwise load it still in received,
	// where the state machine forbids moving to processing.
	if err := lifecycle.Advance(job, model.JobQueued, "queued for processing"); err != nil {
		return nil, err
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := s.queue.EnqueueExtract(ctx, job.ID, job.ObjectKey, job.OriginalFilename); err != nil {
		if failErr := lifecycle.Fail(job, "enqueue_failed", "could not schedule processing"); failErr == nil {
			_ = s.store.UpdateJob(ctx, job)
		}
		return nil, fmt.Errorf("enqueue extract: %w", err)
	}
	return job, nil
}

func contentTypeFor(ext string) string {
	switch ext {
	case "csv":
		return "text/csv"
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "xls":
		return "application/vnd.ms-excel"
	default:
		return "application/octet-stream"
	}
}

// matcherStore adapts the engine store to the reconcile package, scoping
// candidate documents to the transaction owner's documents.
type matcherStore struct {
	store Store
}

func (m *matcherStore) Transaction(ctx context.Context, id string) (*model.Transaction, error) {
	return m.store.Transaction(ctx, id)
}

func (m *matcherStore) Document(ctx context.Context, id string) (*model.Document, error) {
	return m.store.Document(ctx, id)
}

func (m *matcherStore) MatchByTransaction(ctx context.Context, txID string) (*model.ReconciliationMatch, error) {
	return m.store.MatchByTransaction(ctx, txID)
}

func (m *matcherStore) SaveMatch(ctx context.Context, match *model.ReconciliationMatch) error {
	return m.store.SaveMatch(ctx, match)
}

func (m *matcherStore) DeleteMatch(ctx context.Context, txID string) error {
	return m.store.DeleteMatch(ctx, txID)
}

func (m *matcherStore) MatchedDocumentIDs(ctx context.Context) (map[string]string, error) {
	return m.store.MatchedDocumentIDs(ctx)
}

func (m *matcherStore) CandidateDocuments(ctx context.Context, tx *model.Transaction) ([]*model.Document, error) {
	job, err := m.store.Job(ctx, tx.JobID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", tx.JobID, err)
	}
	return m.store.DocumentsByOwner(ctx, job.OwnerID)
}
