package models

import "time"

// RuleAction is the single action of an automation rule. A degenerate
// one-node workflow: Type selects the action, Value its primary parameter
// (recipient, status value, task title and so on, depending on the type).
type RuleAction struct {
	Type  NodeType `json:"type"  validate:"required"`
	Value string   `json:"value"`
}

// AutomationRule is the simple legacy sibling of Workflow: one trigger
// event, optional conditions, exactly one action. Rules share the trigger
// matcher and condition evaluator with the graph engine.
type AutomationRule struct {
	ID                string       `json:"id"`
	Name              string       `json:"name" validate:"required,min=3"`
	TriggerEvent      string       `json:"trigger_event" validate:"required"`
	TriggerConditions []*Condition `json:"trigger_conditions,omitempty"`
	Action            RuleAction   `json:"actions"`
	IsActive          bool         `json:"is_active"`
	ExecutionCount    int64        `json:"execution_count"`
	LastExecutedAt    *time.Time   `json:"last_executed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Matches reports whether a domain event name plus payload satisfies the
// rule's trigger. Nil conditions match unconditionally.
func (r *AutomationRule) Matches(eventName string, payload map[string]any) bool {
	if !r.IsActive || r.TriggerEvent != eventName {
		return false
	}

	return EvaluateAll(r.TriggerConditions, payload)
}
