package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// CSVStatementAdapter parses bank statement exports. Header names vary wildly
// between banks, so columns are located by fuzzy header matching; rows that
// fail to parse are reported as RowErrors rather than aborting the file.
type CSVStatementAdapter struct{}

// NewCSVStatementAdapter constructs the adapter.
func NewCSVStatementAdapter() *CSVStatementAdapter {
	return &CSVStatementAdapter{}
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02 Jan 2006",
	"Jan 2, 2006",
}

type columnMap struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
	category    int
}

// Extract parses the statement. The whole file is unreadable only when no
// header row can be located; anything after that degrades per row.
func (a *CSVStatementAdapter) Extract(_ context.Context, in Input) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(in.Data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Row: row, Err: err.Error()})
			continue
		}
		tx, err := parseRow(cols, record)
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Row: row, Err: err.Error()})
			continue
		}
		Categorize(tx)
		result.Transactions = append(result.Transactions, tx)
		if result.PeriodStart == nil || tx.Date.Before(*result.PeriodStart) {
			d := tx.Date
			result.PeriodStart = &d
		}
		if result.PeriodEnd == nil || tx.Date.After(*result.PeriodEnd) {
			d := tx.Date
			result.PeriodEnd = &d
		}
	}
	return result, nil
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{date: -1, description: -1, amount: -1, debit: -1, credit: -1, category: -1}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case cols.date < 0 && (name == "date" || strings.Contains(name, "transaction date") || strings.Contains(name, "posting date")):
			cols.date = i
		case cols.description < 0 && (strings.Contains(name, "description") || strings.Contains(name, "details") || strings.Contains(name, "narrative") || name == "payee" || name == "merchant"):
			cols.description = i
		case cols.debit < 0 && strings.Contains(name, "debit"):
			cols.debit = i
		case cols.credit < 0 && strings.Contains(name, "credit"):
			cols.credit = i
		case cols.amount < 0 && strings.Contains(name, "amount"):
			cols.amount = i
		case cols.category < 0 && strings.Contains(name, "category"):
			cols.category = i
		}
	}
	if cols.date < 0 || cols.description < 0 {
		return cols, fmt.Errorf("unrecognized statement header: %v", header)
	}
	if cols.amount < 0 && cols.debit < 0 && cols.credit < 0 {
		return cols, fmt.Errorf("no amount column in header: %v", header)
	}
	return cols, nil
}

func parseRow(cols columnMap, record []string) (*model.Transaction, error) {
	get := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := parseDate(get(cols.date))
	if err != nil {
		return nil, err
	}
	description := get(cols.description)
	if description == "" {
		return nil, fmt.Errorf("empty description")
	}

	var amount decimal.Decimal
	var isDebit *bool
	switch {
	case get(cols.amount) != "":
		amount, err = parseAmount(get(cols.amount))
		if err != nil {
			return nil, err
		}
	case get(cols.debit) != "":
		amount, err = parseAmount(get(cols.debit))
		if err != nil {
			return nil, err
		}
		amount = amount.Abs().Neg()
		v := true
		isDebit = &v
	case get(cols.credit) != "":
		amount, err = parseAmount(get(cols.credit))
		if err != nil {
			return nil, err
		}
		amount = amount.Abs()
		v := false
		isDebit = &v
	default:
		return nil, fmt.Errorf("row has no amount")
	}

	tx := &model.Transaction{
		Date:                date,
		OriginalDescription: description,
		Amount:              amount,
		IsDebit:             isDebit,
		Category:            get(cols.category),
		ConfidenceScore:     0.9,
	}
	return tx, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", "£", "", "€", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.Trim(cleaned, "()")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", s)
	}
	return amount, nil
}
