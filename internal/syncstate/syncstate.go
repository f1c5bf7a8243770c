// Package syncstate tracks whether each transaction's local state is
// reflected in the external spreadsheet and drives exports with a CSV
// fallback when the target integration is down.
//
// The functions mutate transactions in place; persisting the mutation is the
// caller's job (the engine folds these into its store updates).
package syncstate

import (
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// MarkDirty transitions a previously exported transaction back to pending
// after a local mutation. It runs as a side effect of every store update so
// drift can never go undetected; a never-exported transaction stays at none.
func MarkDirty(tx *model.Transaction) {
	switch tx.SyncStatus {
	case model.SyncSynced, model.SyncFailed:
		tx.SyncStatus = model.SyncPending
		tx.SyncError = ""
	case model.SyncNone, model.SyncPending:
		// Nothing exported yet, or already awaiting export.
	}
}

// MarkExported stamps the transactions as synced now.
func MarkExported(txs []*model.Transaction, at time.Time) {
	at = at.UTC()
	for _, tx := range txs {
		tx.SyncStatus = model.SyncSynced
		t := at
		tx.LastSyncedAt = &t
		tx.SyncError = ""
	}
}

// MarkFailed records a failed sync attempt.
func MarkFailed(txs []*model.Transaction, errMsg string) {
	for _, tx := range txs {
		tx.SyncStatus = model.SyncFailed
		tx.SyncError = errMsg
	}
}

// Aggregate reduces member statuses to one job-level status: none when
// nothing was ever exported, pending when any member is pending or failed,
// synced otherwise.
func Aggregate(txs []*model.Transaction) model.SyncStatus {
	anyExported := false
	anyDirty := false
	for _, tx := range txs {
		switch tx.SyncStatus {
		case model.SyncPending, model.SyncFailed:
			anyDirty = true
			anyExported = true
		case model.SyncSynced:
			anyExported = true
		}
	}
	switch {
	case !anyExported:
		return model.SyncNone
	case anyDirty:
		return model.SyncPending
	default:
		return model.SyncSynced
	}
}
