package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
	"github.com/ledgerdock/ledgerdock/internal/syncstate"
)

// ExportJob pushes the job's transactions to the spreadsheet target and
// persists the resulting sync states. When the target is unavailable the
// result degrades to a CSV artifact: stored in the exports bucket, presigned
// for download and also returned inline.
func (s *Service) ExportJob(ctx context.Context, jobID, target string) (*syncstate.Result, error) {
	if _, err := s.store.Job(ctx, jobID); err != nil {
		return nil, err
	}
	txs, err := s.store.TransactionsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, target, txs)
	if err != nil {
		return nil, fmt.Errorf("export job %s: %w", jobID, err)
	}
	for _, tx := range txs {
		if err := s.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("persist sync state: %w", err)
		}
	}
	if result.CSVAvailable {
		key := fmt.Sprintf("exports/%s/%d.csv", jobID, time.Now().UTC().Unix())
		if err := s.blobs.UploadExport(ctx, key, result.CSV); err != nil {
			// The inline payload is still the contract; the artifact is a
			// convenience copy.
			log.Printf("store export artifact %s: %v", key, err)
			return result, nil
		}
		if url, err := s.blobs.PresignExport(ctx, key, s.opts.SignedURLTTL); err == nil {
			result.URL = url
		} else {
			log.Printf("presign export %s: %v", key, err)
		}
	}
	return result, nil
}

// JobSyncStatus aggregates member transaction sync states to one job-level
// status.
func (s *Service) JobSyncStatus(ctx context.Context, jobID string) (model.SyncStatus, error) {
	if _, err := s.store.Job(ctx, jobID); err != nil {
		return "", err
	}
	txs, err := s.store.TransactionsByJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return syncstate.Aggregate(txs), nil
}
