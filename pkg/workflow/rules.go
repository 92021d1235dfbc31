package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/registry"
	"github.com/meridiancrm/meridian/pkg/template"
)

// RuleRunner executes automation rules: the single-action siblings of graph
// workflows. Rules share the condition evaluator and the action registry
// with the engine but skip the graph walk entirely.
type RuleRunner struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	logger      *slog.Logger
}

func NewRuleRunner(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *RuleRunner {
	return &RuleRunner{
		persistence: p,
		registry:    reg,
		logger:      logger.With("module", "rule_runner"),
	}
}

// HandleEvent runs every active rule the event matches. A failing rule is
// logged and does not block the others.
func (r *RuleRunner) HandleEvent(ctx context.Context, event *events.DomainEvent) error {
	rules, err := r.persistence.Rules().ListActive(ctx)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if !rule.Matches(event.Name, event.Payload) {
			continue
		}

		if err := r.run(ctx, rule, event); err != nil {
			r.logger.Error("Rule action failed", "rule_id", rule.ID, "error", err)

			continue
		}

		if err := r.persistence.Rules().IncrementExecutionCount(ctx, rule.ID, time.Now().UTC()); err != nil {
			r.logger.Warn("Failed to bump rule counter", "rule_id", rule.ID, "error", err)
		}
	}

	return nil
}

func (r *RuleRunner) run(ctx context.Context, rule *models.AutomationRule, event *events.DomainEvent) error {
	// Rules execute against a transient run record; only the rule counter
	// is persisted.
	execution := &models.Execution{
		ID:           uuid.NewString(),
		TriggerEvent: event.Name,
		Status:       models.ExecutionStatusRunning,
		Context:      SeedContext(event),
		StartedAt:    time.Now().UTC(),
	}

	config := template.Fields(ruleActionConfig(rule.Action), execution.Context)

	action, err := r.registry.Create(string(rule.Action.Type), config)
	if err != nil {
		return err
	}

	_, err = action.Execute(ctx, execution, r.logger)

	return err
}

// ruleActionConfig expands a rule's compact action into the node data bag
// the registered action expects. Value carries the type-specific primary
// parameter.
func ruleActionConfig(action models.RuleAction) map[string]any {
	switch action.Type {
	case models.NodeTypeEmail:
		return map[string]any{
			"to":      action.Value,
			"subject": "{{event}}",
			"body":    "Automated notification for {{entityType}} {{entityId}}",
		}
	case models.NodeTypeTask:
		return map[string]any{"title": action.Value}
	case models.NodeTypeNotification:
		return map[string]any{"title": "{{event}}", "message": action.Value}
	case models.NodeTypeUpdateStatus:
		return map[string]any{"field": "status", "value": action.Value}
	case models.NodeTypeFetchData:
		return map[string]any{"table": action.Value}
	default:
		return map[string]any{"value": action.Value}
	}
}
