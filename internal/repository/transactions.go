package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// amount travels as text: NUMERIC keeps exact values in the database and
// decimal keeps them exact in Go, with no float hop in between.
const txColumns = `id, job_id, tx_date, original_description, amount::text, is_debit,
	COALESCE(category,''), COALESCE(subcategory,''), confidence_score, user_confirmed,
	COALESCE(user_notes,''), COALESCE(invoice_number,''), supplier_id, document_id,
	sync_status, last_synced_at, COALESCE(sync_error,''), created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx     model.Transaction
		amount string
	)
	err := row.Scan(
		&tx.ID, &tx.JobID, &tx.Date, &tx.OriginalDescription, &amount, &tx.IsDebit,
		&tx.Category, &tx.Subcategory, &tx.ConfidenceScore, &tx.UserConfirmed,
		&tx.UserNotes, &tx.InvoiceNumber, &tx.SupplierID, &tx.DocumentID,
		&tx.SyncStatus, &tx.LastSyncedAt, &tx.SyncError, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return &tx, nil
}

// BulkInsert commits the batch in one database transaction so readers never
// observe part of it. A job deleted in the meantime surfaces as
// model.ErrNotFound via its foreign key.
func (r *Repository) BulkInsert(ctx context.Context, jobID string, txs []*model.Transaction) error {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback(ctx)

	for _, tx := range txs {
		_, err := dbTx.Exec(ctx, `
			INSERT INTO transactions (id, job_id, tx_date, original_description, amount, is_debit,
				category, subcategory, confidence_score, user_confirmed, user_notes, invoice_number,
				supplier_id, document_id, sync_status, last_synced_at, sync_error, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		`, tx.ID, jobID, tx.Date, tx.OriginalDescription, tx.Amount.String(), tx.IsDebit,
			tx.Category, tx.Subcategory, tx.ConfidenceScore, tx.UserConfirmed, tx.UserNotes,
			tx.InvoiceNumber, tx.SupplierID, tx.DocumentID, tx.SyncStatus, tx.LastSyncedAt,
			tx.SyncError, tx.CreatedAt, tx.UpdatedAt)
		if err != nil {
			if pgErrCode(err, pgForeignKeyViolation) {
				return model.ErrNotFound
			}
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transactions: %w", err)
	}
	return nil
}

// Transaction returns a row by id.
func (r *Repository) Transaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select transaction: %w", err)
	}
	return tx, nil
}

// TransactionsByJob returns the job's rows in insertion order.
func (r *Repository) TransactionsByJob(ctx context.Context, jobID string) ([]*model.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE job_id=$1 ORDER BY created_at, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()
	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// UpdateTransaction persists the mutable transaction fields.
func (r *Repository) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET tx_date=$1, amount=$2, is_debit=$3, category=$4, subcategory=$5, user_confirmed=$6,
			user_notes=$7, sync_status=$8, last_synced_at=$9, sync_error=$10, updated_at=$11
		WHERE id=$12
	`, tx.Date, tx.Amount.String(), tx.IsDebit, tx.Category, tx.Subcategory, tx.UserConfirmed,
		tx.UserNotes, tx.SyncStatus, tx.LastSyncedAt, tx.SyncError, tx.UpdatedAt, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a single row; the match cascades.
func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteGroup removes every row in the job sharing the document id and
// reports how many went.
func (r *Repository) DeleteGroup(ctx context.Context, jobID, documentID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE job_id=$1 AND document_id=$2`, jobID, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete group: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
