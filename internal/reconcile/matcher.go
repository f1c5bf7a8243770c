// Package reconcile links bank transactions to extracted invoice documents.
//
// A transaction holds at most one active match; re-matching replaces the
// previous link instead of stacking. Candidate ranking by amount and date
// proximity is a tunable heuristic, not a contract.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// Store is the slice of persistence the matcher needs.
type Store interface {
	Transaction(ctx context.Context, id string) (*model.Transaction, error)
	Document(ctx context.Context, id string) (*model.Document, error)
	MatchByTransaction(ctx context.Context, transactionID string) (*model.ReconciliationMatch, error)
	// SaveMatch upserts on transaction id: an existing link is replaced.
	SaveMatch(ctx context.Context, match *model.ReconciliationMatch) error
	DeleteMatch(ctx context.Context, transactionID string) error
	// MatchedDocumentIDs returns documentID -> transactionID for all active
	// matches, used to filter candidates already claimed elsewhere.
	MatchedDocumentIDs(ctx context.Context) (map[string]string, error)
	// CandidateDocuments returns the documents visible to the transaction's
	// owner; scoping is the backend's concern.
	CandidateDocuments(ctx context.Context, tx *model.Transaction) ([]*model.Document, error)
}

// Config carries the ranking tunables.
type Config struct {
	// AmountTolerance is the relative difference under which amounts are
	// considered equal, e.g. 0.01 for 1%.
	AmountTolerance float64
	// DateWindowDays bounds how far apart transaction and invoice dates may
	// be and still contribute to the score.
	DateWindowDays int
	// MinScore is the floor below which a document is not suggested at all.
	MinScore float64
}

// Candidate is one ranked match suggestion.
type Candidate struct {
	Document *model.Document `json:"document"`
	Score    float64         `json:"score"`
	// AmountDelta is abs(|tx amount| - invoice total).
	AmountDelta decimal.Decimal `json:"amountDelta"`
	// DateDeltaDays is -1 when the document has no date.
	DateDeltaDays int `json:"dateDeltaDays"`
}

// Matcher enforces the match invariants over a Store.
type Matcher struct {
	store Store
	cfg   Config
}

// New constructs a Matcher.
func New(store Store, cfg Config) *Matcher {
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = 0.01
	}
	if cfg.DateWindowDays <= 0 {
		cfg.DateWindowDays = 7
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.3
	}
	return &Matcher{store: store, cfg: cfg}
}

// Match creates or replaces the link for the transaction. Re-matching to the
// same document is a no-op returning the existing match.
func (m *Matcher) Match(ctx context.Context, transactionID, documentID string) (*model.ReconciliationMatch, error) {
	if _, err := m.store.Transaction(ctx, transactionID); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, err)
	}
	if _, err := m.store.Document(ctx, documentID); err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}
	existing, err := m.store.MatchByTransaction(ctx, transactionID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("lookup match: %w", err)
	}
	if existing != nil && existing.DocumentID == documentID {
		return existing, nil
	}
	match := &model.ReconciliationMatch{
		TransactionID: transactionID,
		DocumentID:    documentID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.SaveMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("save match: %w", err)
	}
	return match, nil
}

// Unmatch removes the active link. Removing a link that does not exist is a
// no-op; an unknown transaction is an error.
func (m *Matcher) Unmatch(ctx context.Context, transactionID string) error {
	if _, err := m.store.Transaction(ctx, transactionID); err != nil {
		return fmt.Errorf("transaction %s: %w", transactionID, err)
	}
	if err := m.store.DeleteMatch(ctx, transactionID); err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}

// Candidates returns documents eligible for matching the transaction, best
// score first. Documents already matched to a different transaction are
// filtered out; the transaction's own current match stays in the list.
func (m *Matcher) Candidates(ctx context.Context, transactionID string) ([]*Candidate, error) {
	tx, err := m.store.Transaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, err)
	}
	docs, err := m.store.CandidateDocuments(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("candidate documents: %w", err)
	}
	claimed, err := m.store.MatchedDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("matched documents: %w", err)
	}

	var out []*Candidate
	for _, doc := range docs {
		if owner, ok := claimed[doc.ID]; ok && owner != tx.ID {
			continue
		}
		c := m.score(tx, doc)
		if c.Score < m.cfg.MinScore {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

const (
	amountWeight = 0.6
	dateWeight   = 0.4
)

func (m *Matcher) score(tx *model.Transaction, doc *model.Document) *Candidate {
	delta := tx.Amount.Abs().Sub(doc.Total.Abs()).Abs()

	amountScore := 0.0
	if doc.Total.IsZero() {
		amountScore = 0
	} else {
		rel, _ := delta.Div(doc.Total.Abs()).Float64()
		switch {
		case rel <= m.cfg.AmountTolerance:
			amountScore = 1
		case rel >= 1:
			amountScore = 0
		default:
			amountScore = 1 - rel
		}
	}

	dateScore := 0.5 // neutral when the invoice has no usable date
	dateDelta := -1
	if doc.DocumentDate != nil {
		days := int(math.Abs(tx.Date.Sub(*doc.DocumentDate).Hours()) / 24)
		dateDelta = days
		if days > m.cfg.DateWindowDays {
			dateScore = 0
		} else {
			// 1.0 same day, tapering to 0.5 at the window edge.
			dateScore = 1 - 0.5*float64(days)/float64(m.cfg.DateWindowDays)
		}
	}

	return &Candidate{
		Document:      doc,
		Score:         amountWeight*amountScore + dateWeight*dateScore,
		AmountDelta:   delta,
		DateDeltaDays: dateDelta,
	}
}
