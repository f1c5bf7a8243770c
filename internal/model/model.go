// Package model contains the domain types shared across the engine, the
// repositories and the HTTP layer.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared by every storage implementation so callers can use
// errors.Is regardless of the backend.
var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate upload")
	ErrConflict   = errors.New("conflicting state")
	ErrValidation = errors.New("validation failed")
)

// JobStatus enumerates the lifecycle of an ingestion job.
type JobStatus string

const (
	JobReceived   JobStatus = "received"
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobReviewing  JobStatus = "reviewing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further pipeline transitions.
// reviewing is terminal for the pipeline; only confirming every transaction
// moves it to completed.
func (s JobStatus) Terminal() bool {
	return s == JobReviewing || s == JobCompleted || s == JobFailed
}

// JobType distinguishes bank-statement uploads from invoice batches.
type JobType string

const (
	JobTypeSpreadsheet  JobType = "spreadsheet"
	JobTypeInvoiceBatch JobType = "invoice-batch"
)

// IsValid reports whether the job type is one of the known values.
func (t JobType) IsValid() bool {
	return t == JobTypeSpreadsheet || t == JobTypeInvoiceBatch
}

// SyncStatus tracks whether a transaction's local state is reflected in the
// external spreadsheet.
type SyncStatus string

const (
	SyncNone    SyncStatus = "none"
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// DuplicateMatchType identifies which detection tier flagged an upload.
type DuplicateMatchType string

const (
	MatchExact             DuplicateMatchType = "exact"
	MatchFilenameDate      DuplicateMatchType = "filename_date"
	MatchContentSimilarity DuplicateMatchType = "content_similarity"
)

// Job represents one uploaded file and its processing lifecycle.
type Job struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	Type             JobType    `json:"jobType"`
	FileType         string     `json:"fileType"`
	OriginalFilename string     `json:"originalFilename"`
	ContentHash      string     `json:"-"`
	ObjectKey        string     `json:"-"`
	Forced           bool       `json:"forced,omitempty"`
	Status           JobStatus  `json:"status"`
	StatusMessage    string     `json:"statusMessage,omitempty"`
	TotalItems       int        `json:"totalItems"`
	ProcessedItems   int        `json:"processedItems"`
	FailedItems      int        `json:"failedItems"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	BankAccountID    *string    `json:"bankAccountId,omitempty"`
	PeriodStart      *time.Time `json:"periodStart,omitempty"`
	PeriodEnd        *time.Time `json:"periodEnd,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Transaction is one financial movement: a bank-statement row or an invoice
// line item. Amount is signed; when IsDebit is nil the sign is authoritative.
type Transaction struct {
	ID                  string          `json:"id"`
	JobID               string          `json:"jobId"`
	Date                time.Time       `json:"date"`
	OriginalDescription string          `json:"originalDescription"`
	Amount              decimal.Decimal `json:"amount"`
	IsDebit             *bool           `json:"isDebit,omitempty"`
	Category            string          `json:"category,omitempty"`
	Subcategory         string          `json:"subcategory,omitempty"`
	ConfidenceScore     float64         `json:"confidenceScore"`
	UserConfirmed       bool            `json:"userConfirmed"`
	UserNotes           string          `json:"userNotes,omitempty"`
	InvoiceNumber       string          `json:"invoiceNumber,omitempty"`
	SupplierID          *string         `json:"supplierId,omitempty"`
	DocumentID          *string         `json:"documentId,omitempty"`
	SyncStatus          SyncStatus      `json:"syncStatus"`
	LastSyncedAt        *time.Time      `json:"lastSyncedAt,omitempty"`
	SyncError           string          `json:"syncError,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`

	// Document is populated on read when the transaction originates from an
	// extracted invoice. It is never written through the transaction row.
	Document *Document `json:"document,omitempty"`
}

// LineItem is one row of an extracted invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// Document is an extracted invoice or receipt. One Document owns zero or more
// Transactions via Transaction.DocumentID; there is no back-pointer.
type Document struct {
	ID                string             `json:"id"`
	OwnerID           string             `json:"-"`
	OriginalFilename  string             `json:"originalFilename"`
	ObjectKey         string             `json:"-"`
	MimeType          string             `json:"mimeType"`
	VendorName        string             `json:"vendorName,omitempty"`
	InvoiceNumber     string             `json:"invoiceNumber,omitempty"`
	PONumber          string             `json:"poNumber,omitempty"`
	OrderNumber       string             `json:"orderNumber,omitempty"`
	DocumentDate      *time.Time         `json:"documentDate,omitempty"`
	Total             decimal.Decimal    `json:"total"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	Tax               decimal.Decimal    `json:"tax"`
	Fee               decimal.Decimal    `json:"fee"`
	Shipping          decimal.Decimal    `json:"shipping"`
	Currency          string             `json:"currency,omitempty"`
	LineItems         []LineItem         `json:"lineItems,omitempty"`
	FieldConfidence   map[string]float64 `json:"fieldConfidence,omitempty"`
	ExtractionMethods map[string]string  `json:"extractionMethods,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// BankAccount is the owning context for bank-statement jobs.
type BankAccount struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"ownerId"`
	AccountName          string    `json:"accountName"`
	BankName             string    `json:"bankName"`
	AccountType          string    `json:"accountType"`
	DefaultSpreadsheetID string    `json:"defaultSpreadsheetId,omitempty"`
	SpreadsheetTabName   string    `json:"spreadsheetTabName,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// ReconciliationMatch links a bank transaction to an invoice document. A
// transaction holds at most one active match.
type ReconciliationMatch struct {
	TransactionID string    `json:"transactionId"`
	DocumentID    string    `json:"documentId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DuplicateCandidate is the transient outcome of duplicate detection.
type DuplicateCandidate struct {
	MatchType          DuplicateMatchType `json:"matchType"`
	ExistingJobID      string             `json:"existingJobId,omitempty"`
	ExistingDocumentID string             `json:"existingDocumentId,omitempty"`
	SimilarityScore    float64            `json:"similarityScore,omitempty"`
	MatchingCount      int                `json:"matchingCount,omitempty"`
	TotalTransactions  int                `json:"totalTransactions,omitempty"`
}

// TransactionUpdate is the tagged partial-update payload for a transaction.
// Nil fields are left untouched. Confirmation is deliberately absent: it is a
// separate explicit action, never a side effect of editing.
type TransactionUpdate struct {
	Category    *string          `json:"category,omitempty"`
	Subcategory *string          `json:"subcategory,omitempty"`
	UserNotes   *string          `json:"userNotes,omitempty"`
	IsDebit     *bool            `json:"isDebit,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u TransactionUpdate) Empty() bool {
	return u.Category == nil && u.Subcategory == nil && u.UserNotes == nil &&
		u.IsDebit == nil && u.Date == nil && u.Amount == nil
}

// Validate rejects updates that would corrupt a row.
func (u TransactionUpdate) Validate() error {
	if u.Date != nil && u.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}
