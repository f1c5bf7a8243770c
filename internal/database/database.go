package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the engine tables if needed. Having the migration in
// code keeps the stack self-contained so docker-compose can bootstrap
// everything.
//
// The partial unique index on (owner_id, content_hash) is what makes tier-1
// duplicate detection race-free: two simultaneous uploads of the same bytes
// cannot both create a job, and the loser's unique-violation is reported as a
// duplicate. Forced jobs are excluded from the index so explicit overrides
// can coexist with the original.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS bank_accounts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	account_name TEXT NOT NULL,
	bank_name TEXT,
	account_type TEXT,
	default_spreadsheet_id TEXT,
	spreadsheet_tab_name TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	object_key TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	vendor_name TEXT,
	invoice_number TEXT,
	po_number TEXT,
	order_number TEXT,
	document_date TIMESTAMPTZ,
	total NUMERIC NOT NULL DEFAULT 0,
	subtotal NUMERIC NOT NULL DEFAULT 0,
	tax NUMERIC NOT NULL DEFAULT 0,
	fee NUMERIC NOT NULL DEFAULT 0,
	shipping NUMERIC NOT NULL DEFAULT 0,
	currency TEXT,
	line_items JSONB,
	field_confidence JSONB,
	extraction_methods JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	job_type TEXT NOT NULL,
	file_type TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	object_key TEXT NOT NULL,
	forced BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	status_message TEXT,
	total_items INT NOT NULL DEFAULT 0,
	processed_items INT NOT NULL DEFAULT 0,
	failed_items INT NOT NULL DEFAULT 0,
	error_code TEXT,
	error_message TEXT,
	bank_account_id TEXT REFERENCES bank_accounts(id),
	period_start TIMESTAMPTZ,
	period_end TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_owner_hash ON jobs(owner_id, content_hash) WHERE NOT forced;
CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_account ON jobs(bank_account_id);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	tx_date TIMESTAMPTZ NOT NULL,
	original_description TEXT NOT NULL,
	amount NUMERIC NOT NULL,
	is_debit BOOLEAN,
	category TEXT,
	subcategory TEXT,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	user_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	user_notes TEXT,
	invoice_number TEXT,
	supplier_id TEXT,
	document_id TEXT REFERENCES documents(id),
	sync_status TEXT NOT NULL DEFAULT 'none',
	last_synced_at TIMESTAMPTZ,
	sync_error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_job ON transactions(job_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_document ON transactions(document_id);
CREATE TABLE IF NOT EXISTS reconciliation_matches (
	transaction_id TEXT PRIMARY KEY REFERENCES transactions(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL
);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
