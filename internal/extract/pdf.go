package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	pdf "github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// PDFInvoiceAdapter extracts an invoice Document plus one transaction per
// line item from a PDF. Field extraction is regex heuristics over the plain
// text; each recognized field carries its own confidence and method tag.
type PDFInvoiceAdapter struct{}

// NewPDFInvoiceAdapter constructs the adapter.
func NewPDFInvoiceAdapter() *PDFInvoiceAdapter {
	return &PDFInvoiceAdapter{}
}

// Extract reads the PDF text and builds the document. An unreadable PDF is a
// fatal extraction error; missing individual fields are not.
func (a *PDFInvoiceAdapter) Extract(_ context.Context, in Input) (*Result, error) {
	text, err := extractText(in.Data)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	doc, txs := parseInvoiceText(text)
	doc.OriginalFilename = in.Filename
	doc.MimeType = in.MimeType
	return &Result{Transactions: txs, Document: doc}, nil
}

func extractText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

var (
	invoiceNumberRe = regexp.MustCompile(`(?i)invoice\s*(?:no\.?|number|#)?\s*[:\s]\s*([A-Za-z0-9][A-Za-z0-9/-]+)`)
	poNumberRe      = regexp.MustCompile(`(?i)(?:p\.?o\.?|purchase order)\s*(?:no\.?|number|#)?\s*[:\s]\s*([A-Za-z0-9][A-Za-z0-9/-]+)`)
	orderNumberRe   = regexp.MustCompile(`(?i)order\s*(?:no\.?|number|#)?\s*[:\s]\s*([A-Za-z0-9][A-Za-z0-9/-]+)`)
	dateRe          = regexp.MustCompile(`(?i)(?:invoice\s+)?date\s*[:\s]\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{1,2} [A-Za-z]{3,9} \d{4})`)
	// Anchored to line start so "Subtotal" lines never satisfy it.
	totalRe    = regexp.MustCompile(`(?im)^\s*(?:grand\s+)?total(?:\s+due)?\s*[:\s]\s*[$£€]?\s*([\d,]+\.\d{2})`)
	subtotalRe = regexp.MustCompile(`(?i)sub\s*-?\s*total\s*[:\s]\s*[$£€]?\s*([\d,]+\.\d{2})`)
	taxRe      = regexp.MustCompile(`(?i)(?:tax|vat|gst)\s*(?:\([\d.]+%\))?\s*[:\s]\s*[$£€]?\s*([\d,]+\.\d{2})`)
	shippingRe = regexp.MustCompile(`(?i)(?:shipping|delivery|freight)\s*[:\s]\s*[$£€]?\s*([\d,]+\.\d{2})`)
	lineItemRe = regexp.MustCompile(`^(.{3,}?)\s{2,}(\d+(?:\.\d+)?)\s+[$£€]?([\d,]+\.\d{2})\s+[$£€]?([\d,]+\.\d{2})\s*$`)
)

// parseInvoiceText applies the field heuristics to already-extracted text.
// Split out from Extract so tests can exercise it without binary PDFs.
func parseInvoiceText(text string) (*model.Document, []*model.Transaction) {
	doc := &model.Document{
		ID:                uuid.NewString(),
		FieldConfidence:   make(map[string]float64),
		ExtractionMethods: make(map[string]string),
	}

	setField := func(name, value string, confidence float64) {
		doc.FieldConfidence[name] = confidence
		doc.ExtractionMethods[name] = "regex"
		switch name {
		case "vendor_name":
			doc.VendorName = value
			doc.ExtractionMethods[name] = "heuristic"
		case "invoice_number":
			doc.InvoiceNumber = value
		case "po_number":
			doc.PONumber = value
		case "order_number":
			doc.OrderNumber = value
		}
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		if v := strings.TrimSpace(line); v != "" {
			// First non-empty line is the best vendor guess in most layouts.
			setField("vendor_name", v, 0.6)
			break
		}
	}
	if m := invoiceNumberRe.FindStringSubmatch(text); m != nil {
		setField("invoice_number", m[1], 0.9)
	}
	if m := poNumberRe.FindStringSubmatch(text); m != nil {
		setField("po_number", m[1], 0.85)
	}
	if m := orderNumberRe.FindStringSubmatch(text); m != nil && doc.PONumber != m[1] {
		setField("order_number", m[1], 0.8)
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		if d, err := parseDate(m[1]); err == nil {
			doc.DocumentDate = &d
			doc.FieldConfidence["document_date"] = 0.9
			doc.ExtractionMethods["document_date"] = "regex"
		}
	}
	doc.Total = findAmount(text, totalRe, doc, "total")
	doc.Subtotal = findAmount(text, subtotalRe, doc, "subtotal")
	doc.Tax = findAmount(text, taxRe, doc, "tax")
	doc.Shipping = findAmount(text, shippingRe, doc, "shipping")

	txs := parseLineItems(doc, lines)
	if len(txs) == 0 && !doc.Total.IsZero() {
		// No itemization recognized: synthesize a single transaction from the
		// invoice total so the document still yields a ledger entry.
		txs = append(txs, invoiceTransaction(doc, doc.VendorName, doc.Total, 0.7))
	}
	return doc, txs
}

func findAmount(text string, re *regexp.Regexp, doc *model.Document, field string) decimal.Decimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero
	}
	amount, err := parseAmount(m[1])
	if err != nil {
		return decimal.Zero
	}
	doc.FieldConfidence[field] = 0.9
	doc.ExtractionMethods[field] = "regex"
	return amount
}

func parseLineItems(doc *model.Document, lines []string) []*model.Transaction {
	var txs []*model.Transaction
	for _, line := range lines {
		m := lineItemRe.FindStringSubmatch(strings.TrimRight(line, " \t"))
		if m == nil {
			continue
		}
		qty, err1 := decimal.NewFromString(m[2])
		unit, err2 := parseAmount(m[3])
		total, err3 := parseAmount(m[4])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		desc := strings.TrimSpace(m[1])
		if strings.EqualFold(desc, "description") || looksLikeSummaryRow(desc) {
			continue
		}
		doc.LineItems = append(doc.LineItems, model.LineItem{
			Description: desc,
			Quantity:    qty,
			UnitPrice:   unit,
			Total:       total,
		})
		txs = append(txs, invoiceTransaction(doc, desc, total, 0.8))
	}
	return txs
}

func looksLikeSummaryRow(desc string) bool {
	lowered := strings.ToLower(desc)
	for _, word := range []string{"subtotal", "total", "tax", "vat", "shipping", "balance"} {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

func invoiceTransaction(doc *model.Document, description string, amount decimal.Decimal, confidence float64) *model.Transaction {
	docID := doc.ID
	debit := true
	tx := &model.Transaction{
		Date:                time.Now().UTC(),
		OriginalDescription: description,
		Amount:              amount.Abs().Neg(),
		IsDebit:             &debit,
		InvoiceNumber:       doc.InvoiceNumber,
		DocumentID:          &docID,
		ConfidenceScore:     confidence,
	}
	if doc.DocumentDate != nil {
		tx.Date = *doc.DocumentDate
	}
	Categorize(tx)
	return tx
}
