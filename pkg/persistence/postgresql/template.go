package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

const templateColumns = `
	id
	, name
	, description
	, trigger_type
	, trigger_config
	, flow
	, error_handling
`

// TemplateRepository stores canned workflow templates.
type TemplateRepository struct {
	db *sql.DB
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow templates: %w", err)
	}
	defer rows.Close()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow templates: %w", err)
	}

	return templates, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE id = $1
	`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to get workflow template: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	triggerConfig, err := toJSONB(template.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to save workflow template: %w", err)
	}

	flow, err := toJSONB(template.Flow)
	if err != nil {
		return fmt.Errorf("failed to save workflow template: %w", err)
	}

	errorHandling, err := toJSONB(template.ErrorHandling)
	if err != nil {
		return fmt.Errorf("failed to save workflow template: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (
			id, name, description, trigger_type, trigger_config, flow, error_handling
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
			, description = EXCLUDED.description
			, trigger_type = EXCLUDED.trigger_type
			, trigger_config = EXCLUDED.trigger_config
			, flow = EXCLUDED.flow
			, error_handling = EXCLUDED.error_handling
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Description,
		template.TriggerType,
		triggerConfig,
		flow,
		errorHandling,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow template: %w", err)
	}

	return nil
}

func scanTemplate(row scanner) (*models.WorkflowTemplate, error) {
	var (
		template      models.WorkflowTemplate
		triggerConfig []byte
		flow          []byte
		errorHandling []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&template.TriggerType,
		&triggerConfig,
		&flow,
		&errorHandling,
	)
	if err != nil {
		return nil, err
	}

	if err := fromJSONB(triggerConfig, &template.TriggerConfig); err != nil {
		return nil, err
	}

	if err := fromJSONB(flow, &template.Flow); err != nil {
		return nil, err
	}

	if err := fromJSONB(errorHandling, &template.ErrorHandling); err != nil {
		return nil, err
	}

	return &template, nil
}
