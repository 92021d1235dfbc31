// Package main provides the Meridian workflow engine daemon.
package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/meridiancrm/meridian/pkg/eventbus"
	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/registry"
	"github.com/meridiancrm/meridian/pkg/sources/queue"
	"github.com/meridiancrm/meridian/pkg/sources/scheduler"
	"github.com/meridiancrm/meridian/pkg/workflow"
)

const (
	resumeInterval = 5 * time.Second
	batchInterval  = 10 * time.Second
)

// EngineManager wires the trigger sources to the graph engine and the rule
// runner, and drives the periodic work: due resumes, batch windows and cron
// schedules.
type EngineManager struct {
	id          string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *registry.Registry
	queueConfig *queue.Config
	logger      *slog.Logger
}

func NewEngineManager(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	registry *registry.Registry,
	queueConfig *queue.Config,
	logger *slog.Logger,
) *EngineManager {
	return &EngineManager{
		id:          id,
		persistence: p,
		eventBus:    eventBus,
		registry:    registry,
		queueConfig: queueConfig,
		logger:      logger,
	}
}

// Run starts all sources and blocks until the context is cancelled or an
// interrupt arrives.
func (m *EngineManager) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := workflow.NewScheduler(m.persistence, m.registry, m.eventBus, m.logger)
	matcher := workflow.NewMatcher(m.logger)
	batcher := workflow.NewBatcher(m.persistence, runner, m.logger)
	engine := workflow.NewEngine(m.persistence, matcher, batcher, runner, m.logger)
	rules := workflow.NewRuleRunner(m.persistence, m.registry, m.logger)

	m.eventBus.HandleDomainEvents(engine.HandleEvent)
	m.eventBus.HandleDomainEvents(rules.HandleEvent)

	if err := m.eventBus.SubscribeDomainEvents(ctx); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Subscribed to domain events")

	if m.queueConfig != nil {
		// The queue source republishes onto the bus so every consumer,
		// local or remote, sees one stream of domain events.
		source := queue.NewSource(*m.queueConfig, func(ctx context.Context, event *events.DomainEvent) error {
			return m.eventBus.PublishDomainEvent(ctx, event)
		}, m.logger)

		if err := source.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := source.Stop(context.Background()); err != nil {
				m.logger.Error("Failed to stop queue source", "error", err)
			}
		}()
	}

	poller := scheduler.NewPoller(m.persistence, runner, m.logger)
	poller.Start(ctx)
	defer poller.Stop(context.Background())

	go m.tick(ctx, resumeInterval, "resume", engine.ResumeDue)
	go m.tick(ctx, batchInterval, "batch", engine.FlushBatches)

	m.logger.InfoContext(ctx, "Engine started")

	<-ctx.Done()

	m.logger.Info("Shutting down engine")

	return nil
}

func (m *EngineManager) tick(ctx context.Context, interval time.Duration, name string, fn func(ctx context.Context, now time.Time) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := fn(ctx, now.UTC()); err != nil {
				m.logger.Error("Periodic work failed", "task", name, "error", err)
			}
		}
	}
}

func queueConfig(command *cli.Command) *queue.Config {
	addr := command.String("redis-addr")
	if addr == "" {
		return nil
	}

	return &queue.Config{
		Addr:     addr,
		Password: command.String("redis-password"),
		Queue:    command.String("redis-queue"),
	}
}
