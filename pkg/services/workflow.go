package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow is the save-path service for workflow definitions. Every write
// goes through full validation: struct tags, graph structure, trigger
// configuration and per-node config schemas. Invalid definitions are never
// persisted.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: p,
		registry:    reg,
		validator:   validator.New(),
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Create validates and stores a new workflow. New workflows start inactive
// at version 1.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.Validate(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Version = 1
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	if err := w.syncSchedule(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Update validates and stores a new revision of an existing workflow.
// Creation time and run counters carry over from the stored revision.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := w.Validate(workflow); err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.Version = existing.Version + 1
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	workflow.ExecutionCount = existing.ExecutionCount
	workflow.SuccessCount = existing.SuccessCount
	workflow.LastExecutedAt = existing.LastExecutedAt

	if err := w.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	if err := w.syncSchedule(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete soft-deletes a workflow and drops its schedule entry. In-flight
// runs keep the definition they loaded at start.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if err := w.persistence.Workflows().Delete(ctx, workflowID); err != nil {
		return err
	}

	if err := w.persistence.Schedules().DeleteByWorkflow(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to drop schedule for workflow %s: %w", workflowID, err)
	}

	return nil
}

// SetActive toggles a workflow's active flag and keeps its schedule entry
// in sync: deactivated schedule workflows stop firing.
func (w *Workflow) SetActive(ctx context.Context, workflowID string, active bool) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.IsActive = active
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	if err := w.syncSchedule(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// CreateFromTemplate instantiates a stored template as a new, inactive
// workflow. The template's flow and trigger configuration are copied
// verbatim.
func (w *Workflow) CreateFromTemplate(ctx context.Context, templateID, name string) (*models.Workflow, error) {
	if templateID == "" {
		return nil, ErrTemplateRequired
	}

	template, err := w.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = template.Name
	}

	workflow := template.Instantiate(uuid.New().String(), name, time.Now().UTC())
	if err := w.Validate(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow from template: %w", err)
	}

	return workflow, nil
}

// ListTemplates retrieves the available workflow templates.
func (w *Workflow) ListTemplates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	templates, err := w.persistence.Templates().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// ListExecutions retrieves the run history of a workflow, verifying the
// workflow exists first.
func (w *Workflow) ListExecutions(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	if _, err := w.persistence.Workflows().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	executions, err := w.persistence.Executions().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// Validate runs the full save-time validation of a workflow definition:
// struct tags, graph structure, trigger configuration and node config
// schemas. All failures map to validation errors.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if err := w.validator.Struct(workflow); err != nil {
		return NewValidationError("Validate", "INVALID_WORKFLOW", err.Error(), ErrInvalidWorkflow)
	}

	if len(workflow.Flow.Nodes) == 0 {
		return ErrNodesRequired
	}

	graph, err := models.BuildGraph(workflow.Flow)
	if err != nil {
		return NewValidationError("Validate", "INVALID_GRAPH", err.Error(), ErrInvalidWorkflow)
	}

	if err := graph.Validate(); err != nil {
		return NewValidationError("Validate", "INVALID_GRAPH", err.Error(), ErrInvalidWorkflow)
	}

	if err := w.validateTrigger(workflow); err != nil {
		return err
	}

	for _, node := range workflow.Flow.Nodes {
		if node.IsControl() {
			continue
		}

		if err := w.registry.ValidateConfig(string(node.Type), node.Data); err != nil {
			return NewValidationError(
				"Validate",
				"INVALID_NODE_CONFIG",
				fmt.Sprintf("node %s: %v", node.ID, err),
				ErrInvalidNodeData,
			)
		}
	}

	return nil
}

func (w *Workflow) validateTrigger(workflow *models.Workflow) error {
	config := workflow.TriggerConfig

	switch workflow.TriggerType {
	case models.TriggerTypeEvent:
		if config == nil || config.Event == "" {
			return NewValidationError(
				"Validate",
				"INVALID_TRIGGER",
				"event trigger requires an event name",
				ErrInvalidTrigger,
			)
		}
	case models.TriggerTypeSchedule:
		if config == nil {
			return NewValidationError(
				"Validate",
				"INVALID_TRIGGER",
				"schedule trigger requires a schedule configuration",
				ErrInvalidTrigger,
			)
		}

		if _, err := config.CronExpression(); err != nil {
			return NewValidationError("Validate", "INVALID_TRIGGER", err.Error(), ErrInvalidTrigger)
		}
	case models.TriggerTypeWebhook, models.TriggerTypeManual:
		// No required trigger parameters.
	}

	return nil
}

// syncSchedule keeps the schedule table consistent with the workflow
// definition: one entry per runnable schedule workflow, none otherwise.
func (w *Workflow) syncSchedule(ctx context.Context, workflow *models.Workflow) error {
	if err := w.persistence.Schedules().DeleteByWorkflow(ctx, workflow.ID); err != nil {
		return fmt.Errorf("failed to drop schedule for workflow %s: %w", workflow.ID, err)
	}

	if workflow.TriggerType != models.TriggerTypeSchedule || !workflow.Runnable() {
		return nil
	}

	expression, err := workflow.TriggerConfig.CronExpression()
	if err != nil {
		return NewValidationError("syncSchedule", "INVALID_TRIGGER", err.Error(), ErrInvalidTrigger)
	}

	schedule, err := models.NewSchedule(uuid.New().String(), workflow.ID, expression)
	if err != nil {
		return NewValidationError("syncSchedule", "INVALID_TRIGGER", err.Error(), ErrInvalidTrigger)
	}

	if err := w.persistence.Schedules().Save(ctx, schedule); err != nil {
		return fmt.Errorf("failed to save schedule for workflow %s: %w", workflow.ID, err)
	}

	w.logger.Debug("Synced schedule", "workflow_id", workflow.ID, "cron", expression, "next_due_at", schedule.NextDueAt)

	return nil
}
