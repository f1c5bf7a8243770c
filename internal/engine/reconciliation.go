package engine

import (
	"context"

	"github.com/ledgerdock/ledgerdock/internal/model"
	"github.com/ledgerdock/ledgerdock/internal/reconcile"
)

// Match links a bank transaction to an invoice document, replacing any
// previous link for that transaction.
func (s *Service) Match(ctx context.Context, transactionID, documentID string) (*model.ReconciliationMatch, error) {
	return s.matcher.Match(ctx, transactionID, documentID)
}

// Unmatch removes the transaction's active link.
func (s *Service) Unmatch(ctx context.Context, transactionID string) error {
	return s.matcher.Unmatch(ctx, transactionID)
}

// MatchCandidates returns ranked documents eligible for matching the
// transaction.
func (s *Service) MatchCandidates(ctx context.Context, transactionID string) ([]*reconcile.Candidate, error) {
	return s.matcher.Candidates(ctx, transactionID)
}
