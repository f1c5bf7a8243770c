// Package queue defines the asynq task types shared by the API and the
// worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// ExtractJobTask is scheduled each time an upload passes the duplicate gate.
const ExtractJobTask = "job:extract"

// ExtractPayload is serialized into the task payload so the worker knows
// which job to run and which object to download.
type ExtractPayload struct {
	JobID     string `json:"job_id"`
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
}

// Client wraps an asynq client as the engine's Enqueuer.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a queue client against Redis.
func NewClient(opt asynq.RedisClientOpt) *Client {
	return &Client{inner: asynq.NewClient(opt)}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueExtract schedules one extraction run. Retries are disabled: a failed
// run marks the job failed with a reason, and re-running extraction against a
// job that already advanced would only trip the state machine.
func (c *Client) EnqueueExtract(ctx context.Context, jobID, objectKey, filename string) error {
	payload := ExtractPayload{JobID: jobID, ObjectKey: objectKey, Filename: filename}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ExtractJobTask, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}
