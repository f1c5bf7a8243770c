package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

const accountColumns = `id, owner_id, account_name, COALESCE(bank_name,''),
	COALESCE(account_type,''), COALESCE(default_spreadsheet_id,''),
	COALESCE(spreadsheet_tab_name,''), created_at`

func scanAccount(row pgx.Row) (*model.BankAccount, error) {
	var account model.BankAccount
	err := row.Scan(
		&account.ID, &account.OwnerID, &account.AccountName, &account.BankName,
		&account.AccountType, &account.DefaultSpreadsheetID, &account.SpreadsheetTabName,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts a bank account.
func (r *Repository) CreateAccount(ctx context.Context, account *model.BankAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bank_accounts (id, owner_id, account_name, bank_name, account_type,
			default_spreadsheet_id, spreadsheet_tab_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, account.ID, account.OwnerID, account.AccountName, account.BankName, account.AccountType,
		account.DefaultSpreadsheetID, account.SpreadsheetTabName, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", err)
	}
	return nil
}

// Account returns a bank account by id.
func (r *Repository) Account(ctx context.Context, id string) (*model.BankAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id=$1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select bank account: %w", err)
	}
	return account, nil
}

// AccountsByOwner returns the owner's bank accounts.
func (r *Repository) AccountsByOwner(ctx context.Context, ownerID string) ([]*model.BankAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE owner_id=$1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select bank accounts: %w", err)
	}
	defer rows.Close()
	var accounts []*model.BankAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
