package model

import "github.com/shopspring/decimal"

// TransactionGroup is the derived display view over a set of transactions
// sharing a document. It is never persisted.
type TransactionGroup struct {
	DocumentID    string          `json:"documentId,omitempty"`
	Document      *Document       `json:"document,omitempty"`
	Transactions  []*Transaction  `json:"transactions"`
	Amount        decimal.Decimal `json:"amount"`
	UserConfirmed bool            `json:"userConfirmed"`
}

// GroupByDocument collapses transactions into one group per distinct
// document id, preserving first-appearance order. Transactions without a
// document each form their own singleton group.
//
// The group amount is the sum of abs(amount) over member rows. The group is
// confirmed only when every member row is confirmed; a single pending line
// item keeps the whole group pending.
func GroupByDocument(txs []*Transaction) []*TransactionGroup {
	var groups []*TransactionGroup
	byDoc := make(map[string]*TransactionGroup)
	for _, tx := range txs {
		if tx.DocumentID == nil || *tx.DocumentID == "" {
			groups = append(groups, &TransactionGroup{
				Transactions:  []*Transaction{tx},
				Amount:        tx.Amount.Abs(),
				UserConfirmed: tx.UserConfirmed,
			})
			continue
		}
		g, ok := byDoc[*tx.DocumentID]
		if !ok {
			g = &TransactionGroup{
				DocumentID:    *tx.DocumentID,
				Document:      tx.Document,
				UserConfirmed: true,
				Amount:        decimal.Zero,
			}
			byDoc[*tx.DocumentID] = g
			groups = append(groups, g)
		}
		if g.Document == nil && tx.Document != nil {
			g.Document = tx.Document
		}
		g.Transactions = append(g.Transactions, tx)
		g.Amount = g.Amount.Add(tx.Amount.Abs())
		g.UserConfirmed = g.UserConfirmed && tx.UserConfirmed
	}
	return groups
}
