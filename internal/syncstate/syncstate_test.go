package syncstate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

func tx(status model.SyncStatus) *model.Transaction {
	return &model.Transaction{
		Date:                time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		OriginalDescription: "coffee",
		Amount:              decimal.RequireFromString("-4.50"),
		SyncStatus:          status,
	}
}

func TestMarkDirty(t *testing.T) {
	synced := tx(model.SyncSynced)
	synced.SyncError = "old"
	MarkDirty(synced)
	assert.Equal(t, model.SyncPending, synced.SyncStatus)
	assert.Empty(t, synced.SyncError)

	failed := tx(model.SyncFailed)
	MarkDirty(failed)
	assert.Equal(t, model.SyncPending, failed.SyncStatus)

	fresh := tx(model.SyncNone)
	MarkDirty(fresh)
	assert.Equal(t, model.SyncNone, fresh.SyncStatus, "never-exported rows stay at none")

	pending := tx(model.SyncPending)
	MarkDirty(pending)
	assert.Equal(t, model.SyncPending, pending.SyncStatus)
}

func TestMarkExported_StampsLaterTimestamp(t *testing.T) {
	earlier := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	subject := tx(model.SyncPending)
	subject.LastSyncedAt = &earlier

	MarkExported([]*model.Transaction{subject}, earlier.Add(time.Hour))
	assert.Equal(t, model.SyncSynced, subject.SyncStatus)
	require.NotNil(t, subject.LastSyncedAt)
	assert.True(t, subject.LastSyncedAt.After(earlier))
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, model.SyncNone, Aggregate([]*model.Transaction{tx(model.SyncNone), tx(model.SyncNone)}))
	assert.Equal(t, model.SyncPending, Aggregate([]*model.Transaction{tx(model.SyncSynced), tx(model.SyncPending)}))
	assert.Equal(t, model.SyncPending, Aggregate([]*model.Transaction{tx(model.SyncSynced), tx(model.SyncFailed)}))
	assert.Equal(t, model.SyncSynced, Aggregate([]*model.Transaction{tx(model.SyncSynced), tx(model.SyncSynced)}))
	assert.Equal(t, model.SyncNone, Aggregate(nil))
}

type stubTarget struct {
	url string
	err error
}

func (s *stubTarget) Push(context.Context, string, []*model.Transaction) (string, error) {
	return s.url, s.err
}

func TestExport_Success(t *testing.T) {
	e := NewExporter(&stubTarget{url: "https://sheets.example/abc"})
	txs := []*model.Transaction{tx(model.SyncPending), tx(model.SyncNone)}

	res, err := e.Export(context.Background(), "sheet-1", txs)
	require.NoError(t, err)
	assert.Equal(t, "https://sheets.example/abc", res.URL)
	assert.False(t, res.CSVAvailable)
	assert.Equal(t, 2, res.Exported)
	for _, tr := range txs {
		assert.Equal(t, model.SyncSynced, tr.SyncStatus)
		assert.NotNil(t, tr.LastSyncedAt)
	}
}

func TestExport_FallsBackToCSVOnTargetFailure(t *testing.T) {
	e := NewExporter(&stubTarget{err: errors.New("target unavailable")})
	txs := []*model.Transaction{tx(model.SyncPending)}

	res, err := e.Export(context.Background(), "sheet-1", txs)
	require.NoError(t, err, "target failure degrades, it does not error")
	assert.True(t, res.CSVAvailable)
	assert.Equal(t, "target unavailable", res.FallbackReason)
	assert.NotEmpty(t, res.CSV)
	assert.Equal(t, model.SyncFailed, txs[0].SyncStatus)
	assert.Equal(t, "target unavailable", txs[0].SyncError)
}

func TestExport_NoClientMeansCSV(t *testing.T) {
	e := NewExporter(nil)
	txs := []*model.Transaction{tx(model.SyncNone)}
	res, err := e.Export(context.Background(), "sheet-1", txs)
	require.NoError(t, err)
	assert.True(t, res.CSVAvailable)
	assert.NotEmpty(t, res.CSV)

	// Both fallback paths stamp the same state: the rows are failed with the
	// reason, never silently left behind as if no export was attempted.
	assert.Equal(t, "no spreadsheet integration configured", res.FallbackReason)
	assert.Equal(t, model.SyncFailed, txs[0].SyncStatus)
	assert.Equal(t, res.FallbackReason, txs[0].SyncError)
}

func TestWriteCSV(t *testing.T) {
	subject := tx(model.SyncPending)
	subject.Category = "Food"
	subject.UserNotes = "team, breakfast"

	data, err := WriteCSV([]*model.Transaction{subject})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "description")
	assert.Contains(t, lines[1], "-4.50")
	assert.Contains(t, lines[1], `"team, breakfast"`)
}
