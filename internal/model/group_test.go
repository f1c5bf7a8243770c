package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineTx(docID string, amount string, confirmed bool) *Transaction {
	tx := &Transaction{
		ID:     docID + "-" + amount,
		Date:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString(amount),

		UserConfirmed: confirmed,
	}
	if docID != "" {
		d := docID
		tx.DocumentID = &d
	}
	return tx
}

func TestGroupByDocument_SumsAbsoluteAmounts(t *testing.T) {
	txs := []*Transaction{
		lineTx("doc-1", "-12.50", true),
		lineTx("doc-1", "7.25", true),
		lineTx("doc-1", "-0.25", true),
	}
	groups := GroupByDocument(txs)
	require.Len(t, groups, 1)
	assert.Equal(t, "doc-1", groups[0].DocumentID)
	assert.True(t, groups[0].Amount.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, groups[0].UserConfirmed)
	assert.Len(t, groups[0].Transactions, 3)
}

func TestGroupByDocument_ConfirmedOnlyWhenAllConfirmed(t *testing.T) {
	txs := []*Transaction{
		lineTx("doc-1", "10.00", true),
		lineTx("doc-1", "20.00", true),
		lineTx("doc-1", "30.00", false),
	}
	groups := GroupByDocument(txs)
	require.Len(t, groups, 1)
	assert.False(t, groups[0].UserConfirmed, "one pending line item keeps the group pending")

	txs[2].UserConfirmed = true
	groups = GroupByDocument(txs)
	assert.True(t, groups[0].UserConfirmed)
}

func TestGroupByDocument_StandaloneRowsStaySingletons(t *testing.T) {
	txs := []*Transaction{
		lineTx("", "-5.00", false),
		lineTx("doc-2", "8.00", false),
		lineTx("", "3.00", true),
	}
	groups := GroupByDocument(txs)
	require.Len(t, groups, 3)
	assert.Empty(t, groups[0].DocumentID)
	assert.True(t, groups[0].Amount.Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, "doc-2", groups[1].DocumentID)
	assert.True(t, groups[2].UserConfirmed)
}

func TestGroupByDocument_PreservesFirstAppearanceOrder(t *testing.T) {
	txs := []*Transaction{
		lineTx("b", "1.00", true),
		lineTx("a", "1.00", true),
		lineTx("b", "1.00", true),
	}
	groups := GroupByDocument(txs)
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].DocumentID)
	assert.Equal(t, "a", groups[1].DocumentID)
	assert.Len(t, groups[0].Transactions, 2)
}

func TestTransactionUpdateEmpty(t *testing.T) {
	assert.True(t, TransactionUpdate{}.Empty())
	cat := "Travel"
	assert.False(t, TransactionUpdate{Category: &cat}.Empty())
}
