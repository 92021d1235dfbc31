// Package models defines the core domain models for CRM workflow automation.
package models

import "time"

// TriggerType identifies how a workflow run gets started.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "event"    // Started by CRM domain events
	TriggerTypeSchedule TriggerType = "schedule" // Started by the cron schedule poller
	TriggerTypeWebhook  TriggerType = "webhook"  // Started by the webhook ingress
	TriggerTypeManual   TriggerType = "manual"   // Started on demand (test runs included)
)

// ErrorMode controls what the run scheduler does when a node fails.
type ErrorMode string

const (
	ErrorModeStop     ErrorMode = "stop"     // First failure fails the run
	ErrorModeContinue ErrorMode = "continue" // Failures are recorded, other branches keep going
	ErrorModeRetry    ErrorMode = "retry"    // Failed node is re-invoked, then stop semantics
)

// ErrorPolicy is the per-workflow error handling configuration.
// MaxRetries and RetryDelaySeconds are only meaningful for ErrorModeRetry.
type ErrorPolicy struct {
	Mode              ErrorMode `json:"mode"                validate:"required,oneof=stop continue retry"`
	MaxRetries        int       `json:"max_retries"         validate:"omitempty,min=1"`
	RetryDelaySeconds int       `json:"retry_delay_seconds" validate:"omitempty,min=10"`
}

// RetryDelay returns the pause between retry attempts. The engine uses a
// fixed interval rather than exponential backoff.
func (p ErrorPolicy) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

// Workflow is a named automation unit: a trigger, a node graph, and an
// error-handling policy, plus denormalized run counters.
type Workflow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"           validate:"required,min=3"`
	Description   string         `json:"description"`
	TriggerType   TriggerType    `json:"trigger_type"   validate:"required,oneof=event schedule webhook manual"`
	TriggerConfig *TriggerConfig `json:"trigger_config"`
	Flow          FlowDefinition `json:"flow_definition"`
	ErrorHandling ErrorPolicy    `json:"error_handling"`
	IsActive      bool           `json:"is_active"`

	ExecutionCount int64      `json:"execution_count"`
	SuccessCount   int64      `json:"success_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`

	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Runnable reports whether the workflow may start new executions. Manual
// test runs bypass this check by design.
func (w *Workflow) Runnable() bool {
	return w.IsActive && w.DeletedAt == nil
}

// WorkflowTemplate is a canned flow plus trigger configuration that can be
// copied verbatim into a new workflow definition.
type WorkflowTemplate struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"        validate:"required,min=3"`
	Description   string         `json:"description"`
	TriggerType   TriggerType    `json:"trigger_type"`
	TriggerConfig *TriggerConfig `json:"trigger_config"`
	Flow          FlowDefinition `json:"flow_definition"`
	ErrorHandling ErrorPolicy    `json:"error_handling"`
}

// Instantiate copies the template into a fresh, inactive workflow definition.
func (t *WorkflowTemplate) Instantiate(id, name string, now time.Time) *Workflow {
	return &Workflow{
		ID:            id,
		Name:          name,
		Description:   t.Description,
		TriggerType:   t.TriggerType,
		TriggerConfig: t.TriggerConfig,
		Flow:          t.Flow,
		ErrorHandling: t.ErrorHandling,
		IsActive:      false,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
