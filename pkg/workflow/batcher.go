package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

// Batcher buffers matched events per workflow and flushes them as one run
// when the configured size is reached or the window since the first event
// elapses. The buffer is durable, so a restart loses nothing.
type Batcher struct {
	persistence persistence.Persistence
	scheduler   *Scheduler
	logger      *slog.Logger
}

func NewBatcher(p persistence.Persistence, scheduler *Scheduler, logger *slog.Logger) *Batcher {
	return &Batcher{
		persistence: p,
		scheduler:   scheduler,
		logger:      logger.With("module", "batcher"),
	}
}

// Add buffers one matched event and flushes immediately when the batch size
// is reached.
func (b *Batcher) Add(ctx context.Context, workflow *models.Workflow, event *events.DomainEvent) error {
	err := b.persistence.Batches().Append(ctx, &models.BatchedEvent{
		WorkflowID: workflow.ID,
		Payload:    SeedContext(event),
		ArrivedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("buffering event for workflow %s: %w", workflow.ID, err)
	}

	size := 0
	if workflow.TriggerConfig != nil {
		size = workflow.TriggerConfig.BatchSize
	}

	if size <= 0 {
		return nil
	}

	buffered, err := b.persistence.Batches().Get(ctx, workflow.ID)
	if err != nil {
		return err
	}

	if len(buffered) >= size {
		return b.flush(ctx, workflow, buffered)
	}

	return nil
}

// FlushDue flushes every buffer whose window has elapsed. The window is
// measured from the first buffered event's arrival.
func (b *Batcher) FlushDue(ctx context.Context, now time.Time) error {
	workflowIDs, err := b.persistence.Batches().WorkflowIDs(ctx)
	if err != nil {
		return err
	}

	for _, workflowID := range workflowIDs {
		buffered, err := b.persistence.Batches().Get(ctx, workflowID)
		if err != nil || len(buffered) == 0 {
			continue
		}

		workflow, err := b.persistence.Workflows().GetByID(ctx, workflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				b.logger.Info("Discarding buffer, workflow gone", "workflow_id", workflowID)

				if err := b.persistence.Batches().Clear(ctx, workflowID); err != nil {
					b.logger.Warn("Failed to clear orphaned buffer", "workflow_id", workflowID, "error", err)
				}
			}

			continue
		}

		window := time.Duration(0)
		if workflow.TriggerConfig != nil {
			window = workflow.TriggerConfig.BatchWindow()
		}

		if window <= 0 || now.Sub(buffered[0].ArrivedAt) < window {
			continue
		}

		if err := b.flush(ctx, workflow, buffered); err != nil {
			b.logger.Error("Batch flush failed", "workflow_id", workflowID, "error", err)
		}
	}

	return nil
}

// flush clears the buffer and starts one combined run. Workflows that were
// deactivated or deleted while events were buffering drop their buffer
// silently.
func (b *Batcher) flush(ctx context.Context, workflow *models.Workflow, buffered []*models.BatchedEvent) error {
	if err := b.persistence.Batches().Clear(ctx, workflow.ID); err != nil {
		return fmt.Errorf("clearing buffer for workflow %s: %w", workflow.ID, err)
	}

	if !workflow.Runnable() {
		b.logger.Info("Dropping batch, workflow not runnable",
			"workflow_id", workflow.ID, "events", len(buffered))

		return nil
	}

	payloads := make([]any, len(buffered))
	for i, event := range buffered {
		payloads[i] = event.Payload
	}

	seed := map[string]any{
		"events": payloads,
		"count":  len(buffered),
	}

	// The first event's fields stay addressable at the top level for
	// template convenience.
	for key, value := range buffered[0].Payload {
		if _, taken := seed[key]; !taken {
			seed[key] = value
		}
	}

	triggerEvent := ""
	if workflow.TriggerConfig != nil {
		triggerEvent = workflow.TriggerConfig.Event
	}

	b.logger.Info("Flushing batch", "workflow_id", workflow.ID, "events", len(buffered))

	_, err := b.scheduler.Start(ctx, workflow, triggerEvent, seed)

	return err
}
