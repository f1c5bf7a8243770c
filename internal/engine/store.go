package engine

import (
	"context"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// JobStore persists ingestion jobs.
type JobStore interface {
	// CreateJob inserts the job. A non-forced job whose (owner, content hash)
	// already exists fails with model.ErrDuplicate; the storage layer
	// enforces this atomically so racing uploads cannot both pass the gate.
	CreateJob(ctx context.Context, job *model.Job) error
	Job(ctx context.Context, id string) (*model.Job, error)
	JobsByOwner(ctx context.Context, ownerID string) ([]*model.Job, error)
	JobsByBankAccount(ctx context.Context, bankAccountID string) ([]*model.Job, error)
	JobByContentHash(ctx context.Context, ownerID, hash string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	// DeleteJob cascades to the job's transactions.
	DeleteJob(ctx context.Context, id string) error
}

// TransactionStore persists transactions.
type TransactionStore interface {
	// BulkInsert commits the batch atomically: readers never observe part of
	// it. Inserting into a deleted job fails with model.ErrNotFound.
	BulkInsert(ctx context.Context, jobID string, txs []*model.Transaction) error
	Transaction(ctx context.Context, id string) (*model.Transaction, error)
	TransactionsByJob(ctx context.Context, jobID string) ([]*model.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *model.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	// DeleteGroup removes every row in the job sharing the document id and
	// reports how many went. The document itself stays, orphaned.
	DeleteGroup(ctx context.Context, jobID, documentID string) (int, error)
}

// DocumentStore persists extracted invoice documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	Document(ctx context.Context, id string) (*model.Document, error)
	DocumentsByOwner(ctx context.Context, ownerID string) ([]*model.Document, error)
}

// MatchStore persists reconciliation matches keyed by transaction.
type MatchStore interface {
	SaveMatch(ctx context.Context, match *model.ReconciliationMatch) error
	MatchByTransaction(ctx context.Context, transactionID string) (*model.ReconciliationMatch, error)
	DeleteMatch(ctx context.Context, transactionID string) error
	MatchedDocumentIDs(ctx context.Context) (map[string]string, error)
}

// AccountStore persists bank accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.BankAccount) error
	Account(ctx context.Context, id string) (*model.BankAccount, error)
	AccountsByOwner(ctx context.Context, ownerID string) ([]*model.BankAccount, error)
}

// Store is the full persistence surface the engine drives. The pgx
// repositories and the in-memory store both satisfy it.
type Store interface {
	JobStore
	TransactionStore
	DocumentStore
	MatchStore
	AccountStore
}

// BlobStore keeps raw uploads and generated export artifacts.
type BlobStore interface {
	UploadRaw(ctx context.Context, objectKey string, data []byte, contentType string) error
	DownloadRaw(ctx context.Context, objectKey string) ([]byte, error)
	DeleteRaw(ctx context.Context, objectKey string) error
	UploadExport(ctx context.Context, objectKey string, data []byte) error
	PresignExport(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Enqueuer schedules extraction work for the worker.
type Enqueuer interface {
	EnqueueExtract(ctx context.Context, jobID, objectKey, filename string) error
}
