package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// MemoryBlobs holds raw uploads and export artifacts in process memory. It
// stands in for the S3 store in tests and development mode.
type MemoryBlobs struct {
	mu      sync.RWMutex
	raw     map[string][]byte
	exports map[string][]byte
}

// NewMemoryBlobs constructs an empty blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{
		raw:     make(map[string][]byte),
		exports: make(map[string][]byte),
	}
}

// UploadRaw stores the uploaded file bytes.
func (b *MemoryBlobs) UploadRaw(_ context.Context, objectKey string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.raw[objectKey] = cp
	return nil
}

// DownloadRaw returns the stored file bytes.
func (b *MemoryBlobs) DownloadRaw(_ context.Context, objectKey string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.raw[objectKey]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// DeleteRaw removes the stored file.
func (b *MemoryBlobs) DeleteRaw(_ context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.raw, objectKey)
	return nil
}

// UploadExport stores an export artifact.
func (b *MemoryBlobs) UploadExport(_ context.Context, objectKey string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.exports[objectKey] = cp
	return nil
}

// PresignExport returns a synthetic URL for the artifact.
func (b *MemoryBlobs) PresignExport(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.exports[objectKey]; !ok {
		return "", model.ErrNotFound
	}
	return fmt.Sprintf("memory://exports/%s", objectKey), nil
}

// ExtractTask records one enqueued extraction.
type ExtractTask struct {
	JobID     string
	ObjectKey string
	Filename  string
}

// MemoryQueue records enqueued extraction tasks instead of dispatching them.
// Tests drain it and invoke the engine's processor directly.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []ExtractTask
}

// NewMemoryQueue constructs an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// EnqueueExtract appends the task.
func (q *MemoryQueue) EnqueueExtract(_ context.Context, jobID, objectKey, filename string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, ExtractTask{JobID: jobID, ObjectKey: objectKey, Filename: filename})
	return nil
}

// Drain returns and clears the recorded tasks.
func (q *MemoryQueue) Drain() []ExtractTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}
