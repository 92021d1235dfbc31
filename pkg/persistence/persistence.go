// Package persistence provides the storage abstraction the engine runs on:
// workflow definitions, execution history, durable suspensions, batch
// buffers, schedules and automation rules.
package persistence

import (
	"context"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
)

// WorkflowRepository stores workflow definitions. Counter updates are atomic
// increments at the storage layer since concurrent runs of one workflow are
// expected.
type WorkflowRepository interface {
	List(ctx context.Context) ([]*models.Workflow, error)
	ListActiveByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error

	// IncrementExecutionCount bumps execution_count by one.
	IncrementExecutionCount(ctx context.Context, id string) error

	// MarkExecuted records a finished run: last_executed_at always, plus
	// success_count when the run completed.
	MarkExecuted(ctx context.Context, id string, success bool, at time.Time) error
}

// ExecutionRepository stores run records.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	Update(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
}

// ResumeRepository stores pending resumes: delay-node suspensions and
// deferred trigger starts that must survive a process restart.
type ResumeRepository interface {
	Save(ctx context.Context, resume *models.PendingResume) error
	Due(ctx context.Context, now time.Time) ([]*models.PendingResume, error)
	Delete(ctx context.Context, id string) error

	// ListByExecution returns the resumes still outstanding for a run; a
	// resumed branch may finish the execution only when none remain.
	ListByExecution(ctx context.Context, executionID string) ([]*models.PendingResume, error)
}

// BatchRepository buffers matched trigger events per workflow until a batch
// flush. Events keep arrival order; the window is measured from the first
// buffered event.
type BatchRepository interface {
	Append(ctx context.Context, event *models.BatchedEvent) error
	Get(ctx context.Context, workflowID string) ([]*models.BatchedEvent, error)
	Clear(ctx context.Context, workflowID string) error

	// WorkflowIDs lists workflows with a non-empty buffer, for window polling.
	WorkflowIDs(ctx context.Context) ([]string, error)
}

// ScheduleRepository stores cron schedule entries with precomputed due times.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

// RuleRepository stores automation rules.
type RuleRepository interface {
	List(ctx context.Context) ([]*models.AutomationRule, error)
	ListActive(ctx context.Context) ([]*models.AutomationRule, error)
	GetByID(ctx context.Context, id string) (*models.AutomationRule, error)
	Save(ctx context.Context, rule *models.AutomationRule) error
	Delete(ctx context.Context, id string) error
	IncrementExecutionCount(ctx context.Context, id string, at time.Time) error
}

// TemplateRepository stores canned workflow templates.
type TemplateRepository interface {
	List(ctx context.Context) ([]*models.WorkflowTemplate, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	Save(ctx context.Context, template *models.WorkflowTemplate) error
}

// Persistence is the full storage surface used by the engine and the API.
type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Resumes() ResumeRepository
	Batches() BatchRepository
	Schedules() ScheduleRepository
	Rules() RuleRepository
	Templates() TemplateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
