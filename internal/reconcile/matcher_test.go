package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

type fakeStore struct {
	txs     map[string]*model.Transaction
	docs    map[string]*model.Document
	matches map[string]*model.ReconciliationMatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txs:     make(map[string]*model.Transaction),
		docs:    make(map[string]*model.Document),
		matches: make(map[string]*model.ReconciliationMatch),
	}
}

func (f *fakeStore) Transaction(_ context.Context, id string) (*model.Transaction, error) {
	if tx, ok := f.txs[id]; ok {
		return tx, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeStore) Document(_ context.Context, id string) (*model.Document, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeStore) MatchByTransaction(_ context.Context, txID string) (*model.ReconciliationMatch, error) {
	if m, ok := f.matches[txID]; ok {
		return m, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeStore) SaveMatch(_ context.Context, m *model.ReconciliationMatch) error {
	f.matches[m.TransactionID] = m
	return nil
}

func (f *fakeStore) DeleteMatch(_ context.Context, txID string) error {
	delete(f.matches, txID)
	return nil
}

func (f *fakeStore) MatchedDocumentIDs(_ context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for txID, m := range f.matches {
		out[m.DocumentID] = txID
	}
	return out, nil
}

func (f *fakeStore) CandidateDocuments(_ context.Context, _ *model.Transaction) ([]*model.Document, error) {
	var docs []*model.Document
	for _, d := range f.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seed(f *fakeStore) {
	f.txs["tx-1"] = &model.Transaction{ID: "tx-1", Amount: decimal.RequireFromString("-100.00"), Date: date(2025, 3, 10)}
	d := date(2025, 3, 9)
	f.docs["doc-1"] = &model.Document{ID: "doc-1", Total: decimal.RequireFromString("100.00"), DocumentDate: &d}
	f.docs["doc-2"] = &model.Document{ID: "doc-2", Total: decimal.RequireFromString("250.00"), DocumentDate: &d}
}

func TestMatch_ReplacesNotStacks(t *testing.T) {
	store := newFakeStore()
	seed(store)
	m := New(store, Config{})

	first, err := m.Match(context.Background(), "tx-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", first.DocumentID)

	second, err := m.Match(context.Background(), "tx-1", "doc-2")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", second.DocumentID)
	require.Len(t, store.matches, 1, "re-matching replaces rather than stacks")
	assert.Equal(t, "doc-2", store.matches["tx-1"].DocumentID)
}

func TestMatch_IdempotentOnSameDocument(t *testing.T) {
	store := newFakeStore()
	seed(store)
	m := New(store, Config{})

	first, err := m.Match(context.Background(), "tx-1", "doc-1")
	require.NoError(t, err)
	again, err := m.Match(context.Background(), "tx-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, again.CreatedAt, "same arguments return the existing match")
	assert.Len(t, store.matches, 1)
}

func TestMatch_UnknownSidesAreNotFound(t *testing.T) {
	store := newFakeStore()
	seed(store)
	m := New(store, Config{})

	_, err := m.Match(context.Background(), "ghost", "doc-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = m.Match(context.Background(), "tx-1", "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUnmatch(t *testing.T) {
	store := newFakeStore()
	seed(store)
	m := New(store, Config{})

	_, err := m.Match(context.Background(), "tx-1", "doc-1")
	require.NoError(t, err)
	require.NoError(t, m.Unmatch(context.Background(), "tx-1"))
	assert.Empty(t, store.matches)
	// Both sides survive.
	assert.Contains(t, store.txs, "tx-1")
	assert.Contains(t, store.docs, "doc-1")

	// Unmatching again is a no-op; unknown transaction is not found.
	require.NoError(t, m.Unmatch(context.Background(), "tx-1"))
	assert.ErrorIs(t, m.Unmatch(context.Background(), "ghost"), model.ErrNotFound)
}

func TestCandidates_RankingAndFiltering(t *testing.T) {
	store := newFakeStore()
	seed(store)
	// doc-3 matches the amount exactly but is two days further out.
	d := date(2025, 3, 3)
	store.docs["doc-3"] = &model.Document{ID: "doc-3", Total: decimal.RequireFromString("100.00"), DocumentDate: &d}
	m := New(store, Config{AmountTolerance: 0.01, DateWindowDays: 7})

	cands, err := m.Candidates(context.Background(), "tx-1")
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "doc-1", cands[0].Document.ID, "exact amount one day out ranks first")
	for i := 1; i < len(cands); i++ {
		assert.LessOrEqual(t, cands[i].Score, cands[i-1].Score)
	}

	// A document claimed by another transaction disappears from candidates.
	store.txs["tx-2"] = &model.Transaction{ID: "tx-2", Amount: decimal.RequireFromString("-100.00"), Date: date(2025, 3, 10)}
	_, err = m.Match(context.Background(), "tx-2", "doc-1")
	require.NoError(t, err)

	cands, err = m.Candidates(context.Background(), "tx-1")
	require.NoError(t, err)
	for _, c := range cands {
		assert.NotEqual(t, "doc-1", c.Document.ID)
	}
}

func TestCandidates_MinScoreIsTunable(t *testing.T) {
	store := newFakeStore()
	seed(store)

	// Default floor keeps the amount-mismatched doc-2 in the list.
	m := New(store, Config{})
	cands, err := m.Candidates(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, cands, 2)

	// Raising the floor drops it while the near-exact doc-1 survives.
	m = New(store, Config{MinScore: 0.7})
	cands, err = m.Candidates(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "doc-1", cands[0].Document.ID)
}

func TestCandidates_OwnMatchStaysListed(t *testing.T) {
	store := newFakeStore()
	seed(store)
	m := New(store, Config{})

	_, err := m.Match(context.Background(), "tx-1", "doc-1")
	require.NoError(t, err)

	cands, err := m.Candidates(context.Background(), "tx-1")
	require.NoError(t, err)
	found := false
	for _, c := range cands {
		if c.Document.ID == "doc-1" {
			found = true
		}
	}
	assert.True(t, found, "the transaction's current match remains a candidate")
}
