// Package dedup decides whether a new upload duplicates a previously ingested
// job before any of its rows are committed.
//
// Detection runs in three tiers of decreasing certainty: an exact SHA-256 hash
// of the raw bytes, a normalized filename + covered date range heuristic, and
// a content-similarity score over (date, amount, normalized description)
// triples. The first tier that fires wins.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// Lookup is the slice of storage the detector needs.
type Lookup interface {
	JobByContentHash(ctx context.Context, ownerID, hash string) (*model.Job, error)
	JobsByBankAccount(ctx context.Context, bankAccountID string) ([]*model.Job, error)
	TransactionsByJob(ctx context.Context, jobID string) ([]*model.Transaction, error)
}

// Upload describes the candidate being checked.
type Upload struct {
	Filename      string
	ContentHash   string
	BankAccountID *string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	// Parsed carries the candidate's line items when the file could be parsed
	// up front (spreadsheets). Nil for opaque formats; tier 3 is skipped then.
	Parsed []*model.Transaction
}

// Detector runs the tiered checks against existing jobs.
type Detector struct {
	lookup    Lookup
	threshold float64
}

// New constructs a Detector. threshold is the minimum tier-3 similarity score
// that counts as a duplicate.
func New(lookup Lookup, threshold float64) *Detector {
	return &Detector{lookup: lookup, threshold: threshold}
}

// HashBytes returns the hex SHA-256 of the raw upload.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Check returns the best duplicate candidate, or nil when the upload looks
// new. Tier order is fixed: exact hash, then filename+date, then similarity.
func (d *Detector) Check(ctx context.Context, ownerID string, up Upload) (*model.DuplicateCandidate, error) {
	if job, err := d.lookup.JobByContentHash(ctx, ownerID, up.ContentHash); err == nil {
		return &model.DuplicateCandidate{
			MatchType:     model.MatchExact,
			ExistingJobID: job.ID,
		}, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("hash lookup: %w", err)
	}

	if up.BankAccountID == nil || *up.BankAccountID == "" {
		return nil, nil
	}
	jobs, err := d.lookup.JobsByBankAccount(ctx, *up.BankAccountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	name := NormalizeFilename(up.Filename)
	for _, job := range jobs {
		if job.Status == model.JobFailed {
			continue
		}
		if NormalizeFilename(job.OriginalFilename) != name {
			continue
		}
		if !periodsCompatible(up.PeriodStart, up.PeriodEnd, job.PeriodStart, job.PeriodEnd) {
			continue
		}
		return &model.DuplicateCandidate{
			MatchType:     model.MatchFilenameDate,
			ExistingJobID: job.ID,
		}, nil
	}

	// A 0-row candidate can never be a content-similarity duplicate.
	if len(up.Parsed) == 0 {
		return nil, nil
	}
	candidateKeys := tripleKeys(up.Parsed)
	var best *model.DuplicateCandidate
	for _, job := range jobs {
		if job.Status == model.JobFailed {
			continue
		}
		existing, err := d.lookup.TransactionsByJob(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("transactions for %s: %w", job.ID, err)
		}
		if len(existing) == 0 {
			continue
		}
		matching := countMatching(candidateKeys, existing)
		score := float64(matching) / float64(len(up.Parsed))
		if score < d.threshold {
			continue
		}
		if best == nil || score > best.SimilarityScore {
			best = &model.DuplicateCandidate{
				MatchType:         model.MatchContentSimilarity,
				ExistingJobID:     job.ID,
				SimilarityScore:   score,
				MatchingCount:     matching,
				TotalTransactions: len(up.Parsed),
			}
		}
	}
	return best, nil
}

// NormalizeDescription lowercases, trims and collapses whitespace runs. The
// exact normalization is a tunable policy, not a wire contract; keep it in
// step with TripleKey.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeFilename lowercases the base name, drops the extension and
// collapses separator runs so "Statement_March.CSV" matches
// "statement march.csv".
func NormalizeFilename(s string) string {
	base := filepath.Base(strings.TrimSpace(s))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// TripleKey builds the tier-3 matching key for one transaction. Amounts are
// fixed to two decimal places so "12.5" and "12.50" collide.
func TripleKey(date time.Time, amount decimal.Decimal, description string) string {
	return fmt.Sprintf("%s|%s|%s", date.Format("2006-01-02"), amount.StringFixed(2), NormalizeDescription(description))
}

func tripleKeys(txs []*model.Transaction) map[string]struct{} {
	keys := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		keys[TripleKey(tx.Date, tx.Amount, tx.OriginalDescription)] = struct{}{}
	}
	return keys
}

func countMatching(candidate map[string]struct{}, existing []*model.Transaction) int {
	seen := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		seen[TripleKey(tx.Date, tx.Amount, tx.OriginalDescription)] = struct{}{}
	}
	matching := 0
	for key := range candidate {
		if _, ok := seen[key]; ok {
			matching++
		}
	}
	return matching
}

// periodsCompatible treats two statements as covering the same window when
// their ranges overlap. When either side's range is unknown the filename
// match stands on its own; only disjoint known ranges clear the upload.
func periodsCompatible(aStart, aEnd, bStart, bEnd *time.Time) bool {
	if aStart == nil || aEnd == nil || bStart == nil || bEnd == nil {
		return true
	}
	return !aEnd.Before(*bStart) && !bEnd.Before(*aStart)
}
