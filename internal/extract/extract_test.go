package extract

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

func TestCSVAdapter_AmountColumn(t *testing.T) {
	data := []byte("Date,Description,Amount\n" +
		"2025-03-01,COFFEE SHOP,-4.50\n" +
		"2025-03-15,ACME PAYROLL,\"2,500.00\"\n" +
		"2025-03-03,Refund,(12.00)\n")

	res, err := NewCSVStatementAdapter().Extract(context.Background(), Input{Filename: "statement.csv", Data: data})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)
	assert.Empty(t, res.RowErrors)

	assert.Equal(t, "COFFEE SHOP", res.Transactions[0].OriginalDescription)
	assert.True(t, res.Transactions[0].Amount.Equal(decimal.RequireFromString("-4.50")))
	assert.True(t, res.Transactions[1].Amount.Equal(decimal.RequireFromString("2500.00")))
	assert.True(t, res.Transactions[2].Amount.Equal(decimal.RequireFromString("-12.00")), "parenthesized amounts are negative")

	require.NotNil(t, res.PeriodStart)
	require.NotNil(t, res.PeriodEnd)
	assert.Equal(t, "2025-03-01", res.PeriodStart.Format("2006-01-02"))
	assert.Equal(t, "2025-03-15", res.PeriodEnd.Format("2006-01-02"))
}

func TestCSVAdapter_DebitCreditColumns(t *testing.T) {
	data := []byte("Posting Date,Details,Debit Amount,Credit Amount\n" +
		"2025-03-01,GROCER MART,40.00,\n" +
		"2025-03-02,SALARY,,1200.00\n")

	res, err := NewCSVStatementAdapter().Extract(context.Background(), Input{Filename: "bank.csv", Data: data})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	debit := res.Transactions[0]
	assert.True(t, debit.Amount.Equal(decimal.RequireFromString("-40.00")))
	require.NotNil(t, debit.IsDebit)
	assert.True(t, *debit.IsDebit)

	credit := res.Transactions[1]
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("1200.00")))
	require.NotNil(t, credit.IsDebit)
	assert.False(t, *credit.IsDebit)
}

func TestCSVAdapter_BadRowsBecomeRowErrors(t *testing.T) {
	data := []byte("Date,Description,Amount\n" +
		"2025-03-01,OK ROW,-1.00\n" +
		"not-a-date,BAD DATE,-2.00\n" +
		"2025-03-03,BAD AMOUNT,abc\n" +
		"2025-03-04,,\n")

	res, err := NewCSVStatementAdapter().Extract(context.Background(), Input{Filename: "statement.csv", Data: data})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 1)
	assert.Len(t, res.RowErrors, 3)
}

func TestCSVAdapter_UnrecognizedHeaderIsFatal(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\n")
	_, err := NewCSVStatementAdapter().Extract(context.Background(), Input{Filename: "x.csv", Data: data})
	require.Error(t, err)
}

func TestParseInvoiceText_FieldsAndLineItems(t *testing.T) {
	text := "Acme Supplies Ltd\n" +
		"Invoice Number: INV-2042\n" +
		"PO Number: PO-77\n" +
		"Date: 2025-03-10\n" +
		"\n" +
		"Description        Qty   Unit    Amount\n" +
		"Widget large         2   10.00   20.00\n" +
		"Bracket set          1    5.50    5.50\n" +
		"\n" +
		"Subtotal: 25.50\n" +
		"VAT (20%): 5.10\n" +
		"Total: 30.60\n"

	doc, txs := parseInvoiceText(text)
	assert.Equal(t, "Acme Supplies Ltd", doc.VendorName)
	assert.Equal(t, "INV-2042", doc.InvoiceNumber)
	assert.Equal(t, "PO-77", doc.PONumber)
	require.NotNil(t, doc.DocumentDate)
	assert.Equal(t, "2025-03-10", doc.DocumentDate.Format("2006-01-02"))
	assert.True(t, doc.Total.Equal(decimal.RequireFromString("30.60")))
	assert.True(t, doc.Subtotal.Equal(decimal.RequireFromString("25.50")))
	assert.True(t, doc.Tax.Equal(decimal.RequireFromString("5.10")))

	require.Len(t, doc.LineItems, 2)
	assert.Equal(t, "Widget large", doc.LineItems[0].Description)
	assert.True(t, doc.LineItems[0].Quantity.Equal(decimal.RequireFromString("2")))

	require.Len(t, txs, 2)
	for _, tx := range txs {
		require.NotNil(t, tx.DocumentID)
		assert.Equal(t, doc.ID, *tx.DocumentID)
		assert.Equal(t, "INV-2042", tx.InvoiceNumber)
		assert.True(t, tx.Amount.IsNegative(), "invoice line items are outflows")
		assert.Equal(t, "2025-03-10", tx.Date.Format("2006-01-02"))
	}
	assert.Equal(t, "regex", doc.ExtractionMethods["invoice_number"])
	assert.InDelta(t, 0.9, doc.FieldConfidence["total"], 1e-9)
}

func TestParseInvoiceText_NoLineItemsSynthesizesTotal(t *testing.T) {
	text := "Cloud Hosting Inc\nInvoice #: 88\nTotal Due: 49.00\n"
	doc, txs := parseInvoiceText(text)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("-49.00")))
	assert.Empty(t, doc.LineItems)
}

func TestCategorize(t *testing.T) {
	tx := &model.Transaction{OriginalDescription: "MONTHLY PAYROLL ACME", ConfidenceScore: 0.9}
	Categorize(tx)
	assert.Equal(t, "Income", tx.Category)
	assert.Equal(t, "Salary", tx.Subcategory)
	assert.InDelta(t, 0.9, tx.ConfidenceScore, 1e-9)

	unknown := &model.Transaction{OriginalDescription: "ZZZZZ 9000", ConfidenceScore: 0.9}
	Categorize(unknown)
	assert.Empty(t, unknown.Category)
	assert.InDelta(t, 0.6, unknown.ConfidenceScore, 1e-9, "uncategorized rows drop confidence")

	preset := &model.Transaction{OriginalDescription: "anything", Category: "Custom", ConfidenceScore: 0.9}
	Categorize(preset)
	assert.Equal(t, "Custom", preset.Category, "file-provided categories are kept")
}

func TestRegistry(t *testing.T) {
	r := Default()
	a, err := r.For("statement.CSV")
	require.NoError(t, err)
	assert.IsType(t, &CSVStatementAdapter{}, a)

	a, err = r.For("invoice.pdf")
	require.NoError(t, err)
	assert.IsType(t, &PDFInvoiceAdapter{}, a)

	_, err = r.For("data.xlsx")
	assert.ErrorIs(t, err, ErrUnsupported)
}
