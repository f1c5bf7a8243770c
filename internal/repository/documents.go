package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

const documentColumns = `id, owner_id, original_filename, object_key, mime_type,
	COALESCE(vendor_name,''), COALESCE(invoice_number,''), COALESCE(po_number,''),
	COALESCE(order_number,''), document_date, total::text, subtotal::text, tax::text,
	fee::text, shipping::text, COALESCE(currency,''), line_items, field_confidence,
	extraction_methods, created_at`

// CreateDocument inserts an extracted invoice document. Structured fields go
// to JSONB; amounts stay NUMERIC.
func (r *Repository) CreateDocument(ctx context.Context, doc *model.Document) error {
	lineItems, err := json.Marshal(doc.LineItems)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}
	confidence, err := json.Marshal(doc.FieldConfidence)
	if err != nil {
		return fmt.Errorf("marshal field confidence: %w", err)
	}
	methods, err := json.Marshal(doc.ExtractionMethods)
	if err != nil {
		return fmt.Errorf("marshal extraction methods: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO documents (id, owner_id, original_filename, object_key, mime_type, vendor_name,
			invoice_number, po_number, order_number, document_date, total, subtotal, tax, fee,
			shipping, currency, line_items, field_confidence, extraction_methods, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, doc.ID, doc.OwnerID, doc.OriginalFilename, doc.ObjectKey, doc.MimeType, doc.VendorName,
		doc.InvoiceNumber, doc.PONumber, doc.OrderNumber, doc.DocumentDate, doc.Total.String(),
		doc.Subtotal.String(), doc.Tax.String(), doc.Fee.String(), doc.Shipping.String(),
		doc.Currency, lineItems, confidence, methods, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		doc                                 model.Document
		total, subtotal, tax, fee, shipping string
		lineItems, confidence, methods      []byte
	)
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.OriginalFilename, &doc.ObjectKey, &doc.MimeType,
		&doc.VendorName, &doc.InvoiceNumber, &doc.PONumber, &doc.OrderNumber, &doc.DocumentDate,
		&total, &subtotal, &tax, &fee, &shipping, &doc.Currency,
		&lineItems, &confidence, &methods, &doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&doc.Total, total}, {&doc.Subtotal, subtotal}, {&doc.Tax, tax},
		{&doc.Fee, fee}, {&doc.Shipping, shipping},
	} {
		*pair.dst, err = decimal.NewFromString(pair.src)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", pair.src, err)
		}
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &doc.LineItems); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	if len(confidence) > 0 {
		if err := json.Unmarshal(confidence, &doc.FieldConfidence); err != nil {
			return nil, fmt.Errorf("unmarshal field confidence: %w", err)
		}
	}
	if len(methods) > 0 {
		if err := json.Unmarshal(methods, &doc.ExtractionMethods); err != nil {
			return nil, fmt.Errorf("unmarshal extraction methods: %w", err)
		}
	}
	return &doc, nil
}

// Document returns a document by id.
func (r *Repository) Document(ctx context.Context, id string) (*model.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// DocumentsByOwner returns the owner's documents.
func (r *Repository) DocumentsByOwner(ctx context.Context, ownerID string) ([]*model.Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id=$1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
