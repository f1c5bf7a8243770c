package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

const jobColumns = `id, owner_id, job_type, file_type, original_filename, content_hash, object_key,
	forced, status, COALESCE(status_message,''), total_items, processed_items, failed_items,
	COALESCE(error_code,''), COALESCE(error_message,''), bank_account_id, period_start, period_end,
	created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var job model.Job
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.Type, &job.FileType, &job.OriginalFilename,
		&job.ContentHash, &job.ObjectKey, &job.Forced, &job.Status, &job.StatusMessage,
		&job.TotalItems, &job.ProcessedItems, &job.FailedItems,
		&job.ErrorCode, &job.ErrorMessage, &job.BankAccountID,
		&job.PeriodStart, &job.PeriodEnd, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob inserts the job. The partial unique index on
// (owner_id, content_hash) WHERE NOT forced turns a racing identical upload
// into model.ErrDuplicate here.
func (r *Repository) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, owner_id, job_type, file_type, original_filename, content_hash,
			object_key, forced, status, status_message, total_items, processed_items, failed_items,
			error_code, error_message, bank_account_id, period_start, period_end, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, job.ID, job.OwnerID, job.Type, job.FileType, job.OriginalFilename, job.ContentHash,
		job.ObjectKey, job.Forced, job.Status, job.StatusMessage, job.TotalItems, job.ProcessedItems,
		job.FailedItems, job.ErrorCode, job.ErrorMessage, job.BankAccountID, job.PeriodStart,
		job.PeriodEnd, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if pgErrCode(err, pgUniqueViolation) {
			return model.ErrDuplicate
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Job returns a job by id.
func (r *Repository) Job(ctx context.Context, id string) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// JobsByOwner lists the owner's jobs, newest first.
func (r *Repository) JobsByOwner(ctx context.Context, ownerID string) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobsByBankAccount lists jobs attached to the bank account, newest first.
func (r *Repository) JobsByBankAccount(ctx context.Context, bankAccountID string) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE bank_account_id=$1 ORDER BY created_at DESC`, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobByContentHash returns any job of the owner with the hash, forced
// included, oldest first so the original ingest is reported.
func (r *Repository) JobByContentHash(ctx context.Context, ownerID, hash string) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE owner_id=$1 AND content_hash=$2
		ORDER BY created_at LIMIT 1
	`, ownerID, hash)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select job by hash: %w", err)
	}
	return job, nil
}

// UpdateJob persists the mutable job fields.
func (r *Repository) UpdateJob(ctx context.Context, job *model.Job) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status=$1, status_message=$2, total_items=$3, processed_items=$4, failed_items=$5,
			error_code=$6, error_message=$7, period_start=$8, period_end=$9, updated_at=$10
		WHERE id=$11
	`, job.Status, job.StatusMessage, job.TotalItems, job.ProcessedItems, job.FailedItems,
		job.ErrorCode, job.ErrorMessage, job.PeriodStart, job.PeriodEnd, job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteJob removes the job; ON DELETE CASCADE takes the transactions and
// their matches with it.
func (r *Repository) DeleteJob(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
