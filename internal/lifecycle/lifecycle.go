// Package lifecycle owns the state machine for ingestion jobs.
//
// States move received → queued → processing → {reviewing | completed |
// failed}. reviewing and completed are both success terminals; reviewing means
// user confirmation is still pending. failed is terminal with error details
// populated. Terminal states never regress; the single exception is
// reviewing → completed once every transaction is confirmed or auto-accepted.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

var transitions = map[model.JobStatus]map[model.JobStatus]bool{
	model.JobReceived: {
		model.JobQueued: true,
		model.JobFailed: true,
	},
	model.JobQueued: {
		model.JobProcessing: true,
		model.JobFailed:     true,
	},
	model.JobProcessing: {
		model.JobReviewing: true,
		model.JobCompleted: true,
		model.JobFailed:    true,
	},
	model.JobReviewing: {
		model.JobCompleted: true,
	},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to model.JobStatus) bool {
	return transitions[from][to]
}

// Advance moves the job to the target status, rejecting illegal transitions
// with model.ErrConflict so callers can surface them as conflicts.
func Advance(job *model.Job, to model.JobStatus, message string) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("%w: job %s cannot move %s -> %s", model.ErrConflict, job.ID, job.Status, to)
	}
	job.Status = to
	job.StatusMessage = message
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SetTotal records how many items the extraction adapter reported. Totals are
// only adjusted downward-never: a shrinking total would break the counter
// invariant for already-recorded items.
func SetTotal(job *model.Job, total int) error {
	if total < job.ProcessedItems+job.FailedItems {
		return fmt.Errorf("%w: total %d below recorded items %d", model.ErrConflict, total, job.ProcessedItems+job.FailedItems)
	}
	job.TotalItems = total
	return nil
}

// RecordProcessed bumps the processed counter, holding
// processed + failed <= total whenever a total is known.
func RecordProcessed(job *model.Job, n int) error {
	return record(job, n, 0)
}

// RecordFailed bumps the failed counter for line items that could not be
// parsed. Per-item failures never fail the whole job.
func RecordFailed(job *model.Job, n int) error {
	return record(job, 0, n)
}

func record(job *model.Job, processed, failed int) error {
	if processed < 0 || failed < 0 {
		return fmt.Errorf("%w: negative counter delta", model.ErrConflict)
	}
	next := job.ProcessedItems + processed + job.FailedItems + failed
	if job.TotalItems > 0 && next > job.TotalItems {
		return fmt.Errorf("%w: counters %d would exceed total %d", model.ErrConflict, next, job.TotalItems)
	}
	job.ProcessedItems += processed
	job.FailedItems += failed
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the job to failed with a machine code and a human message,
// preserving any already-recorded counters. Failing a job that already
// reached a terminal state is a conflict.
func Fail(job *model.Job, code, message string) error {
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s already %s", model.ErrConflict, job.ID, job.Status)
	}
	job.Status = model.JobFailed
	job.ErrorCode = code
	job.ErrorMessage = message
	job.StatusMessage = message
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Finish closes a processing job once extraction input is exhausted: reviewing
// when any transaction still needs a human, completed otherwise.
func Finish(job *model.Job, needsReview bool) error {
	if needsReview {
		return Advance(job, model.JobReviewing, "awaiting review")
	}
	return Advance(job, model.JobCompleted, "processing finished")
}

// NeedsReview reports whether any transaction is below the auto-accept
// confidence and not explicitly confirmed by the user.
func NeedsReview(txs []*model.Transaction, autoAccept float64) bool {
	for _, tx := range txs {
		if !tx.UserConfirmed && tx.ConfidenceScore < autoAccept {
			return true
		}
	}
	return false
}
