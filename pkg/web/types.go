// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/meridiancrm/meridian/pkg/models"

// WorkflowRequest is the request body for creating or replacing a workflow.
// The service layer runs full definition validation on top of these tags.
type WorkflowRequest struct {
	Name          string                `json:"name"            validate:"required,min=3"`
	Description   string                `json:"description"`
	TriggerType   models.TriggerType    `json:"trigger_type"    validate:"required,oneof=event schedule webhook manual"`
	TriggerConfig *models.TriggerConfig `json:"trigger_config"`
	Flow          models.FlowDefinition `json:"flow_definition"`
	ErrorHandling models.ErrorPolicy    `json:"error_handling"`
	IsActive      bool                  `json:"is_active"`
}

// Workflow converts the request into a domain model. IDs, versioning and
// counters are assigned by the service layer.
func (r *WorkflowRequest) Workflow() *models.Workflow {
	return &models.Workflow{
		Name:          r.Name,
		Description:   r.Description,
		TriggerType:   r.TriggerType,
		TriggerConfig: r.TriggerConfig,
		Flow:          r.Flow,
		ErrorHandling: r.ErrorHandling,
		IsActive:      r.IsActive,
	}
}

// RuleRequest is the request body for creating or replacing an automation rule.
type RuleRequest struct {
	Name              string              `json:"name"          validate:"required,min=3"`
	TriggerEvent      string              `json:"trigger_event" validate:"required"`
	TriggerConditions []*models.Condition `json:"trigger_conditions,omitempty"`
	Action            models.RuleAction   `json:"actions"       validate:"required"`
	IsActive          bool                `json:"is_active"`
}

// Rule converts the request into a domain model.
func (r *RuleRequest) Rule() *models.AutomationRule {
	return &models.AutomationRule{
		Name:              r.Name,
		TriggerEvent:      r.TriggerEvent,
		TriggerConditions: r.TriggerConditions,
		Action:            r.Action,
		IsActive:          r.IsActive,
	}
}

// TestRunRequest is the request body for a manual test run. Context seeds
// the run's variable bag so template paths resolve during the test.
type TestRunRequest struct {
	Context map[string]any `json:"context,omitempty"`
}

// FromTemplateRequest is the request body for instantiating a template.
type FromTemplateRequest struct {
	Name string `json:"name" validate:"omitempty,min=3"`
}

// TestRunResponse reports the outcome of a manual run.
type TestRunResponse struct {
	Execution *models.Execution `json:"execution"`
}

// WebhookResponse acknowledges an accepted webhook delivery.
type WebhookResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ActionTypeResponse describes one registered action type and its config
// schema for workflow editors.
type ActionTypeResponse struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema,omitempty"`
}
