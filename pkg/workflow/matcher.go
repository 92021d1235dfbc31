// Package workflow is the engine core: trigger matching, batching, and the
// run scheduler that walks workflow graphs.
package workflow

import (
	"log/slog"
	"maps"
	"time"

	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/models"
)

// StartKind says how a matched event turns into a run.
type StartKind string

const (
	StartNow      StartKind = "now"      // Run immediately
	StartDeferred StartKind = "deferred" // Park a durable deferred start
	StartBuffered StartKind = "buffered" // Hand to the batcher
)

// StartPlan is the matcher's routing decision for one matched event.
type StartPlan struct {
	Kind StartKind
	At   time.Time // Fire time for deferred starts
}

// Matcher decides which workflows a domain event starts and how.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With("module", "matcher")}
}

// Matches reports whether the event satisfies the workflow's trigger: exact
// event name, field-change gating, and all trigger conditions.
func (m *Matcher) Matches(workflow *models.Workflow, event *events.DomainEvent) bool {
	if workflow.TriggerType != models.TriggerTypeEvent {
		return false
	}

	cfg := workflow.TriggerConfig
	if cfg == nil || cfg.Event != event.Name {
		return false
	}

	if cfg.TriggerOnFieldChange && !event.Changed(cfg.WatchFields) {
		m.logger.Debug("Event skipped, no watched field changed",
			"workflow_id", workflow.ID, "event", event.Name)

		return false
	}

	if cfg.ConditionsEnabled && !models.EvaluateAll(cfg.Conditions, event.Payload) {
		m.logger.Debug("Event skipped, trigger conditions not met",
			"workflow_id", workflow.ID, "event", event.Name)

		return false
	}

	return true
}

// Plan routes a matched event. Batching wins over delay when both are set:
// the batch flush starts one combined run instead of many deferred ones.
func (m *Matcher) Plan(workflow *models.Workflow, now time.Time) StartPlan {
	cfg := workflow.TriggerConfig

	if cfg.BatchEnabled {
		return StartPlan{Kind: StartBuffered}
	}

	if cfg.DelayEnabled && cfg.DelayValue > 0 {
		return StartPlan{Kind: StartDeferred, At: now.Add(cfg.DelayDuration())}
	}

	return StartPlan{Kind: StartNow}
}

// SeedContext builds the initial run context from a domain event: the row
// payload plus the reserved event coordinates.
func SeedContext(event *events.DomainEvent) map[string]any {
	seed := make(map[string]any, len(event.Payload)+3)
	maps.Copy(seed, event.Payload)

	seed["event"] = event.Name
	seed["entityId"] = event.EntityID
	seed["entityType"] = event.EntityType

	return seed
}
