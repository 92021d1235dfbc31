package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

const workflowColumns = `
	id
  , name
  , description
  , trigger_type
  , trigger_config
  , flow
  , error_handling
  , is_active
  , execution_count
  , success_count
  , last_executed_at
  , version
  , created_at
  , updated_at
  , deleted_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db *sql.DB
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) ListActiveByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL AND is_active = true AND trigger_type = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, string(triggerType))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	triggerConfig, err := toJSONB(workflow.TriggerConfig)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	flow, err := toJSONB(workflow.Flow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	errorHandling, err := toJSONB(workflow.ErrorHandling)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	workflow.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO workflows (
			id, name, description, trigger_type, trigger_config, flow,
			error_handling, is_active, execution_count, success_count,
			last_executed_at, version, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			flow = EXCLUDED.flow,
			error_handling = EXCLUDED.error_handling,
			is_active = EXCLUDED.is_active,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		string(workflow.TriggerType),
		triggerConfig,
		flow,
		errorHandling,
		workflow.IsActive,
		workflow.ExecutionCount,
		workflow.SuccessCount,
		workflow.LastExecutedAt,
		workflow.Version,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete soft-deletes: the row keeps its data with deleted_at set so an
// in-flight run keeps its snapshot while new matching stops immediately.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE workflows
		SET deleted_at = NOW(), is_active = false, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// IncrementExecutionCount bumps the counter in SQL so concurrent runs never
// lose updates.
func (r *WorkflowRepository) IncrementExecutionCount(ctx context.Context, id string) error {
	query := `
		UPDATE workflows
		SET execution_count = execution_count + 1
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return persistence.NewWorkflowError("IncrementExecutionCount", id, err)
	}

	return nil
}

func (r *WorkflowRepository) MarkExecuted(ctx context.Context, id string, success bool, at time.Time) error {
	query := `
		UPDATE workflows
		SET success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_executed_at = $3
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, success, at); err != nil {
		return persistence.NewWorkflowError("MarkExecuted", id, err)
	}

	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		triggerConfig []byte
		flow          []byte
		errorHandling []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerType,
		&triggerConfig,
		&flow,
		&errorHandling,
		&workflow.IsActive,
		&workflow.ExecutionCount,
		&workflow.SuccessCount,
		&workflow.LastExecutedAt,
		&workflow.Version,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerConfig) > 0 {
		workflow.TriggerConfig = &models.TriggerConfig{}
		if err := fromJSONB(triggerConfig, workflow.TriggerConfig); err != nil {
			return nil, err
		}
	}

	if err := fromJSONB(flow, &workflow.Flow); err != nil {
		return nil, err
	}

	if err := fromJSONB(errorHandling, &workflow.ErrorHandling); err != nil {
		return nil, err
	}

	return &workflow, nil
}
