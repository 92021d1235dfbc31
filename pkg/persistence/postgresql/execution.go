package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

const executionColumns = `
	id
  , workflow_id
  , trigger_event
  , status
  , context
  , started_at
  , duration_ms
  , error_message
  , node_failures
`

// ExecutionRepository handles run-record database operations.
type ExecutionRepository struct {
	db *sql.DB
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	return r.upsert(ctx, "Create", execution)
}

func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	return r.upsert(ctx, "Update", execution)
}

func (r *ExecutionRepository) upsert(ctx context.Context, op string, execution *models.Execution) error {
	contextBag, err := toJSONB(execution.Context)
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	nodeFailures, err := toJSONB(execution.NodeFailures)
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, trigger_event, status, context,
			started_at, duration_ms, error_message, node_failures
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			duration_ms = EXCLUDED.duration_ms,
			error_message = EXCLUDED.error_message,
			node_failures = EXCLUDED.node_failures
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.TriggerEvent,
		string(execution.Status),
		contextBag,
		execution.StartedAt,
		execution.DurationMs,
		execution.ErrorMessage,
		nodeFailures,
	)
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE id = $1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution    models.Execution
		contextBag   []byte
		nodeFailures []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TriggerEvent,
		&execution.Status,
		&contextBag,
		&execution.StartedAt,
		&execution.DurationMs,
		&execution.ErrorMessage,
		&nodeFailures,
	)
	if err != nil {
		return nil, err
	}

	if err := fromJSONB(contextBag, &execution.Context); err != nil {
		return nil, err
	}

	if err := fromJSONB(nodeFailures, &execution.NodeFailures); err != nil {
		return nil, err
	}

	return &execution, nil
}
