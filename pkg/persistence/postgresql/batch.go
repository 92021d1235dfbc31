package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meridiancrm/meridian/pkg/models"
)

// BatchRepository buffers matched trigger events per workflow.
type BatchRepository struct {
	db *sql.DB
}

func (r *BatchRepository) Append(ctx context.Context, event *models.BatchedEvent) error {
	payload, err := toJSONB(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to append batched event: %w", err)
	}

	query := `
		INSERT INTO batched_events (workflow_id, payload, arrived_at)
		VALUES ($1, $2, $3)
	`

	if _, err := r.db.ExecContext(ctx, query, event.WorkflowID, payload, event.ArrivedAt); err != nil {
		return fmt.Errorf("failed to append batched event: %w", err)
	}

	return nil
}

func (r *BatchRepository) Get(ctx context.Context, workflowID string) ([]*models.BatchedEvent, error) {
	query := `
		SELECT workflow_id, payload, arrived_at
		FROM batched_events
		WHERE workflow_id = $1
		ORDER BY arrived_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batched events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.BatchedEvent, 0)

	for rows.Next() {
		var (
			event   models.BatchedEvent
			payload []byte
		)

		if err := rows.Scan(&event.WorkflowID, &payload, &event.ArrivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batched event: %w", err)
		}

		if err := fromJSONB(payload, &event.Payload); err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batched events: %w", err)
	}

	return events, nil
}

func (r *BatchRepository) Clear(ctx context.Context, workflowID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM batched_events WHERE workflow_id = $1", workflowID); err != nil {
		return fmt.Errorf("failed to clear batched events: %w", err)
	}

	return nil
}

func (r *BatchRepository) WorkflowIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT workflow_id FROM batched_events")
	if err != nil {
		return nil, fmt.Errorf("failed to query buffered workflow ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow ids: %w", err)
	}

	return ids, nil
}
