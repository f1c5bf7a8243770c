package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdock/ledgerdock/internal/config"
	"github.com/ledgerdock/ledgerdock/internal/engine"
	"github.com/ledgerdock/ledgerdock/internal/extract"
	"github.com/ledgerdock/ledgerdock/internal/model"
	"github.com/ledgerdock/ledgerdock/internal/storage"
)

type testServer struct {
	handler http.Handler
	svc     *engine.Service
	queue   *storage.MemoryQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{MaxUploadBytes: 10 << 20}
	queue := storage.NewMemoryQueue()
	svc := engine.New(storage.NewMemory(), storage.NewMemoryBlobs(), queue, extract.Default(), nil, engine.Options{})
	return &testServer{
		handler: New(cfg, svc).Handler(),
		svc:     svc,
		queue:   queue,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	return ts.do(t, method, path, &buf, "application/json")
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func statementBody(rows ...string) []byte {
	lines := append([]string{"Date,Description,Amount"}, rows...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

var sampleRows = []string{
	"2024-03-01,COFFEE SHOP,-4.50",
	"2024-03-04,SUPERMARKET,-82.13",
	"2024-03-10,ACME PAYROLL,2500.00",
}

func (ts *testServer) upload(t *testing.T, filename string, data []byte, force bool) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, data, map[string]string{
		"ownerId": "owner-1",
		"jobType": string(model.JobTypeSpreadsheet),
	})
	path := "/jobs"
	if force {
		path += "?force=true"
	}
	return ts.do(t, http.MethodPost, path, body, contentType)
}

func (ts *testServer) runQueued(t *testing.T) {
	t.Helper()
	for _, task := range ts.queue.Drain() {
		require.NoError(t, ts.svc.ProcessJob(context.Background(), task.JobID, task.ObjectKey, task.Filename))
	}
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) model.Job {
	t.Helper()
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, "statement.csv", statementBody(sampleRows...), false)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decodeJob(t, rec)
	assert.Equal(t, string(model.JobQueued), string(job.Status))

	ts.runQueued(t)

	rec = ts.do(t, http.MethodGet, "/jobs/"+job.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJob(t, rec)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 3, got.TotalItems)

	rec = ts.do(t, http.MethodGet, "/jobs/"+job.ID+"/transactions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Transactions []*model.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Transactions, 3)

	rec = ts.do(t, http.MethodGet, "/jobs?ownerId=owner-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs struct {
		Jobs []*model.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs.Jobs, 1)
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t)

	// Missing jobType.
	body, contentType := multipartUpload(t, "statement.csv", statementBody(sampleRows...), map[string]string{
		"ownerId": "owner-1",
	})
	rec := ts.do(t, http.MethodPost, "/jobs", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Not multipart at all.
	rec = ts.doJSON(t, http.MethodPost, "/jobs", map[string]string{"ownerId": "owner-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateUploadConflict(t *testing.T) {
	ts := newTestServer(t)
	data := statementBody(sampleRows...)

	rec := ts.upload(t, "statement.csv", data, false)
	require.Equal(t, http.StatusAccepted, rec.Code)
	original := decodeJob(t, rec)

	rec = ts.upload(t, "statement.csv", data, false)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		IsDuplicate bool                      `json:"isDuplicate"`
		Candidate   *model.DuplicateCandidate `json:"candidate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.True(t, conflict.IsDuplicate)
	require.NotNil(t, conflict.Candidate)
	assert.Equal(t, model.MatchExact, conflict.Candidate.MatchType)
	assert.Equal(t, original.ID, conflict.Candidate.ExistingJobID)

	// Force pushes it through.
	rec = ts.upload(t, "statement.csv", data, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestJobNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/jobs/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/jobs/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionPatchAndConfirm(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "statement.csv", statementBody(sampleRows...), false)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)
	ts.runQueued(t)

	txs, err := ts.svc.ListTransactions(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, txs)

	rec = ts.doJSON(t, http.MethodPatch, "/transactions/"+txs[0].ID, map[string]string{"userNotes": "checked"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "checked", updated.UserNotes)
	assert.False(t, updated.UserConfirmed)

	rec = ts.doJSON(t, http.MethodPost, "/transactions/"+txs[0].ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, updated.UserConfirmed)

	rec = ts.do(t, http.MethodDelete, "/transactions/"+txs[1].ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.doJSON(t, http.MethodPatch, "/transactions/missing", map[string]string{"userNotes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteGroupRequiresDocumentID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "statement.csv", statementBody(sampleRows...), false)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)
	ts.runQueued(t)

	rec = ts.do(t, http.MethodDelete, "/jobs/"+job.ID+"/transactions", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobSyncAndExport(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "statement.csv", statementBody(sampleRows...), false)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)
	ts.runQueued(t)

	rec = ts.do(t, http.MethodGet, "/jobs/"+job.ID+"/sync", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sync struct {
		SyncStatus model.SyncStatus `json:"syncStatus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sync))
	assert.Equal(t, model.SyncNone, sync.SyncStatus)

	// No integration configured: export degrades to CSV.
	rec = ts.doJSON(t, http.MethodPost, "/jobs/"+job.ID+"/export/sheet-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		CSVAvailable   bool   `json:"csvAvailable"`
		FallbackReason string `json:"fallbackReason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.CSVAvailable)
	assert.NotEmpty(t, result.FallbackReason)
}

func TestReconciliationValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodPost, "/reconciliation/match", map[string]string{"transactionId": "t"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/reconciliation/candidates", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.doJSON(t, http.MethodPost, "/reconciliation/match", map[string]string{
		"transactionId": "missing", "documentId": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodPost, "/accounts", model.BankAccount{
		OwnerID: "owner-1", AccountName: "Business current", BankName: "Monzo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.BankAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	rec = ts.do(t, http.MethodGet, "/accounts?ownerId=owner-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts struct {
		Accounts []*model.BankAccount `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	assert.Len(t, accounts.Accounts, 1)

	rec = ts.doJSON(t, http.MethodPost, "/accounts", model.BankAccount{OwnerID: "owner-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	for path, method := range map[string]string{
		"/jobs":                 http.MethodPatch,
		"/reconciliation/match": http.MethodGet,
		"/accounts":             http.MethodDelete,
	} {
		rec := ts.do(t, method, path, nil, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, fmt.Sprintf("%s %s", method, path))
	}
}
