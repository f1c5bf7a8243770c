package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// SaveMatch upserts on transaction id; re-matching replaces the old link.
func (r *Repository) SaveMatch(ctx context.Context, match *model.ReconciliationMatch) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reconciliation_matches (transaction_id, document_id, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (transaction_id)
		DO UPDATE SET document_id=EXCLUDED.document_id, created_at=EXCLUDED.created_at
	`, match.TransactionID, match.DocumentID, match.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert match: %w", err)
	}
	return nil
}

// MatchByTransaction returns the transaction's active match.
func (r *Repository) MatchByTransaction(ctx context.Context, transactionID string) (*model.ReconciliationMatch, error) {
	var match model.ReconciliationMatch
	err := r.pool.QueryRow(ctx, `
		SELECT transaction_id, document_id, created_at
		FROM reconciliation_matches WHERE transaction_id=$1
	`, transactionID).Scan(&match.TransactionID, &match.DocumentID, &match.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select match: %w", err)
	}
	return &match, nil
}

// DeleteMatch removes the transaction's match. Deleting an absent match is
// not an error.
func (r *Repository) DeleteMatch(ctx context.Context, transactionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reconciliation_matches WHERE transaction_id=$1`, transactionID)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}

// MatchedDocumentIDs returns documentID -> transactionID for active matches.
func (r *Repository) MatchedDocumentIDs(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT document_id, transaction_id FROM reconciliation_matches`)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var docID, txID string
		if err := rows.Scan(&docID, &txID); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out[docID] = txID
	}
	return out, rows.Err()
}
