// Package extract turns raw uploaded bytes into candidate transactions and
// extracted invoice documents. The engine treats adapters as black boxes that
// yield a finite batch of results with per-item confidence scores.
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// ErrUnsupported is returned when no adapter is registered for a file type.
var ErrUnsupported = errors.New("no extraction adapter for file type")

// Input is one uploaded file handed to an adapter.
type Input struct {
	Filename string
	MimeType string
	Data     []byte
}

// RowError records a line item that could not be parsed. Row errors are
// counted as failed items on the job; they never fail the whole extraction.
type RowError struct {
	Row int
	Err string
}

// Result is the complete output of one extraction run.
type Result struct {
	// Transactions lack IDs and job ownership; the caller assigns those.
	Transactions []*model.Transaction
	// Document is set when the input was an invoice or receipt; its ID is
	// already assigned and referenced by the transactions above.
	Document *model.Document
	// PeriodStart/PeriodEnd is the covered date range of a statement, used by
	// the filename+date duplicate tier.
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	RowErrors   []RowError
}

// Adapter extracts transactions from one file format.
type Adapter interface {
	Extract(ctx context.Context, in Input) (*Result, error)
}

// Registry selects an adapter by file extension.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to an extension ("csv", "pdf").
func (r *Registry) Register(ext string, a Adapter) {
	r.adapters[strings.ToLower(strings.TrimPrefix(ext, "."))] = a
}

// For returns the adapter for a filename or ErrUnsupported.
func (r *Registry) For(filename string) (Adapter, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	a, ok := r.adapters[ext]
	if !ok {
		return nil, ErrUnsupported
	}
	return a, nil
}

// Default returns a registry with the built-in adapters wired: CSV bank
// statements and PDF invoices. Other spreadsheet formats are accepted at
// upload but fail their job with a readable message until an adapter is
// registered for them.
func Default() *Registry {
	r := NewRegistry()
	r.Register("csv", NewCSVStatementAdapter())
	r.Register("pdf", NewPDFInvoiceAdapter())
	return r
}
