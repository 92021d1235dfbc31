// Package scheduler fires schedule-triggered workflows from their
// precomputed due times.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/workflow"
)

const defaultInterval = 1 * time.Minute

// Poller checks persisted schedules once per interval and starts a run for
// each due one. Schedules carry a precomputed NextDueAt, so one query finds
// everything due regardless of the individual cron expressions.
type Poller struct {
	persistence persistence.Persistence
	scheduler   *workflow.Scheduler
	logger      *slog.Logger
	interval    time.Duration

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func NewPoller(p persistence.Persistence, scheduler *workflow.Scheduler, logger *slog.Logger) *Poller {
	return &Poller{
		persistence: p,
		scheduler:   scheduler,
		logger:      logger.With("module", "schedule_poller"),
		interval:    defaultInterval,
	}
}

func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.started = true
	p.done = make(chan struct{})

	go p.loop(ctx)

	p.logger.InfoContext(ctx, "Schedule poller started", "interval", p.interval)
}

func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	close(p.done)
	p.started = false

	p.logger.InfoContext(ctx, "Schedule poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := p.Tick(ctx, now.UTC()); err != nil {
				p.logger.ErrorContext(ctx, "Schedule tick failed", "error", err)
			}
		}
	}
}

// Tick fires every due schedule once and advances its next due time.
func (p *Poller) Tick(ctx context.Context, now time.Time) error {
	due, err := p.persistence.Schedules().Due(ctx, now)
	if err != nil {
		return err
	}

	for _, schedule := range due {
		p.fire(ctx, schedule, now)
	}

	return nil
}

func (p *Poller) fire(ctx context.Context, schedule *models.Schedule, now time.Time) {
	logger := p.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

	wf, err := p.persistence.Workflows().GetByID(ctx, schedule.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			logger.Info("Removing schedule, workflow gone")

			if err := p.persistence.Schedules().DeleteByWorkflow(ctx, schedule.WorkflowID); err != nil {
				logger.Warn("Failed to remove orphaned schedule", "error", err)
			}

			return
		}

		logger.Error("Failed to load workflow for schedule", "error", err)

		return
	}

	// Advance before running so a slow run cannot double-fire next tick.
	if err := schedule.UpdateNextDueAt(); err != nil {
		logger.Error("Failed to advance schedule", "error", err)

		return
	}

	if err := p.persistence.Schedules().Save(ctx, schedule); err != nil {
		logger.Error("Failed to persist advanced schedule", "error", err)

		return
	}

	if !wf.Runnable() {
		logger.Debug("Skipping schedule, workflow not runnable")

		return
	}

	seed := map[string]any{
		"event":        "schedule.fired",
		"scheduled_at": now.Format(time.RFC3339),
	}

	if _, err := p.scheduler.Start(ctx, wf, "schedule.fired", seed); err != nil {
		logger.Error("Scheduled run failed", "error", err)
	}
}
