package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

// Engine is the event-side entry point: it routes each CRM domain event to
// the workflows it starts, and drives the pollers for deferred starts,
// delay resumes and batch windows.
type Engine struct {
	persistence persistence.Persistence
	matcher     *Matcher
	batcher     *Batcher
	scheduler   *Scheduler
	logger      *slog.Logger
}

func NewEngine(p persistence.Persistence, matcher *Matcher, batcher *Batcher, scheduler *Scheduler, logger *slog.Logger) *Engine {
	return &Engine{
		persistence: p,
		matcher:     matcher,
		batcher:     batcher,
		scheduler:   scheduler,
		logger:      logger.With("module", "engine"),
	}
}

// HandleEvent fans one domain event out to every matching active workflow.
// One workflow's failure does not stop the others.
func (e *Engine) HandleEvent(ctx context.Context, event *events.DomainEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	workflows, err := e.persistence.Workflows().ListActiveByTriggerType(ctx, models.TriggerTypeEvent)
	if err != nil {
		return err
	}

	var errs []error

	for _, workflow := range workflows {
		if !e.matcher.Matches(workflow, event) {
			continue
		}

		if err := e.dispatch(ctx, workflow, event); err != nil {
			e.logger.Error("Failed to start workflow for event",
				"workflow_id", workflow.ID, "event", event.Name, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) dispatch(ctx context.Context, workflow *models.Workflow, event *events.DomainEvent) error {
	plan := e.matcher.Plan(workflow, time.Now().UTC())

	switch plan.Kind {
	case StartBuffered:
		return e.batcher.Add(ctx, workflow, event)

	case StartDeferred:
		return e.persistence.Resumes().Save(ctx, &models.PendingResume{
			ID:         uuid.NewString(),
			Kind:       models.ResumeKindDeferredStart,
			WorkflowID: workflow.ID,
			ResumeAt:   plan.At,
			Context:    SeedContext(event),
			CreatedAt:  time.Now().UTC(),
		})

	default:
		_, err := e.scheduler.Start(ctx, workflow, event.Name, SeedContext(event))

		return err
	}
}

// ResumeDue fires every pending resume whose time has arrived: deferred
// starts and delay-node suspensions alike.
func (e *Engine) ResumeDue(ctx context.Context, now time.Time) error {
	due, err := e.persistence.Resumes().Due(ctx, now)
	if err != nil {
		return err
	}

	var errs []error

	for _, resume := range due {
		if err := e.scheduler.Resume(ctx, resume); err != nil {
			e.logger.Error("Resume failed",
				"resume_id", resume.ID, "kind", resume.Kind, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// FlushBatches flushes batch buffers whose window elapsed.
func (e *Engine) FlushBatches(ctx context.Context, now time.Time) error {
	return e.batcher.FlushDue(ctx, now)
}
