// Package worker runs the extraction pipeline off the asynq queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/ledgerdock/ledgerdock/internal/engine"
	"github.com/ledgerdock/ledgerdock/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	svc *engine.Service
}

// NewProcessor constructs a worker processor over the engine.
func NewProcessor(svc *engine.Service) *Processor {
	return &Processor{svc: svc}
}

// Handler registers the extract task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExtractJobTask, p.handleExtract)
	return mux
}

func (p *Processor) handleExtract(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	log.Printf("processing job %s (%s)", payload.JobID, payload.Filename)
	if err := p.svc.ProcessJob(ctx, payload.JobID, payload.ObjectKey, payload.Filename); err != nil {
		log.Printf("process job %s: %v", payload.JobID, err)
		return err
	}
	return nil
}
