package syncstate

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// TargetClient pushes rows to an external spreadsheet target. The wire
// protocol lives behind this interface; the engine only cares about the URL
// of the exported sheet or the failure.
type TargetClient interface {
	Push(ctx context.Context, target string, txs []*model.Transaction) (url string, err error)
}

// Result is the outcome of one export run. When the target integration is
// unavailable the CSV payload is the contract, not a best-effort extra.
type Result struct {
	URL            string `json:"url,omitempty"`
	CSVAvailable   bool   `json:"csvAvailable"`
	CSV            []byte `json:"-"`
	Exported       int    `json:"exported"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Exporter pushes transactions to a target, degrading to CSV on failure.
type Exporter struct {
	client TargetClient
}

// NewExporter constructs an Exporter. A nil client means no integration is
// configured and every export falls back to CSV.
func NewExporter(client TargetClient) *Exporter {
	return &Exporter{client: client}
}

const noIntegrationReason = "no spreadsheet integration configured"

// Export pushes the transactions and stamps their sync state in place. Every
// CSV fallback, whether the target failed or none is configured, marks the
// rows failed with the reason so the job aggregate stays pending until a real
// push succeeds; the export itself does not error.
func (e *Exporter) Export(ctx context.Context, target string, txs []*model.Transaction) (*Result, error) {
	if len(txs) == 0 {
		return &Result{}, nil
	}
	reason := noIntegrationReason
	if e.client != nil {
		url, err := e.client.Push(ctx, target, txs)
		if err == nil {
			MarkExported(txs, time.Now())
			return &Result{URL: url, Exported: len(txs)}, nil
		}
		reason = err.Error()
	}
	MarkFailed(txs, reason)
	csvBytes, err := WriteCSV(txs)
	if err != nil {
		return nil, fmt.Errorf("csv fallback (%s): %w", reason, err)
	}
	return &Result{
		CSVAvailable:   true,
		CSV:            csvBytes,
		FallbackReason: reason,
	}, nil
}

var csvHeader = []string{
	"date", "description", "amount", "category", "subcategory",
	"confirmed", "notes", "invoice_number", "sync_status",
}

// WriteCSV renders transactions as the fallback spreadsheet payload.
func WriteCSV(txs []*model.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		record := []string{
			tx.Date.Format("2006-01-02"),
			tx.OriginalDescription,
			tx.Amount.StringFixed(2),
			tx.Category,
			tx.Subcategory,
			fmt.Sprintf("%t", tx.UserConfirmed),
			tx.UserNotes,
			tx.InvoiceNumber,
			string(tx.SyncStatus),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
