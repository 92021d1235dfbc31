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

const ruleColumns = `
	id
	, name
	, trigger_event
	, trigger_conditions
	, action
	, is_active
	, execution_count
	, last_executed_at
	, created_at
	, updated_at
`

// RuleRepository stores automation rules.
type RuleRepository struct {
	db *sql.DB
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		ORDER BY created_at DESC
	`

	return r.queryRules(ctx, query)
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*models.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE is_active
		ORDER BY created_at DESC
	`

	return r.queryRules(ctx, query)
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE id = $1
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRuleNotFound
		}

		return nil, fmt.Errorf("failed to get automation rule: %w", err)
	}

	return rule, nil
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	conditions, err := toJSONB(rule.TriggerConditions)
	if err != nil {
		return fmt.Errorf("failed to save automation rule: %w", err)
	}

	action, err := toJSONB(rule.Action)
	if err != nil {
		return fmt.Errorf("failed to save automation rule: %w", err)
	}

	query := `
		INSERT INTO automation_rules (
			id, name, trigger_event, trigger_conditions, action, is_active,
			execution_count, last_executed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
			, trigger_event = EXCLUDED.trigger_event
			, trigger_conditions = EXCLUDED.trigger_conditions
			, action = EXCLUDED.action
			, is_active = EXCLUDED.is_active
			, updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.TriggerEvent,
		conditions,
		action,
		rule.IsActive,
		rule.ExecutionCount,
		rule.LastExecutedAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation rule: %w", err)
	}

	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete automation rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete automation rule: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}

func (r *RuleRepository) IncrementExecutionCount(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE automation_rules
		SET execution_count = execution_count + 1
			, last_executed_at = $2
			, updated_at = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to increment rule execution count: %w", err)
	}

	return nil
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.AutomationRule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation rule: %w", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating automation rules: %w", err)
	}

	return rules, nil
}

func scanRule(row scanner) (*models.AutomationRule, error) {
	var (
		rule           models.AutomationRule
		conditions     []byte
		action         []byte
		lastExecutedAt sql.NullTime
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.TriggerEvent,
		&conditions,
		&action,
		&rule.IsActive,
		&rule.ExecutionCount,
		&lastExecutedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := fromJSONB(conditions, &rule.TriggerConditions); err != nil {
		return nil, err
	}

	if err := fromJSONB(action, &rule.Action); err != nil {
		return nil, err
	}

	if lastExecutedAt.Valid {
		rule.LastExecutedAt = &lastExecutedAt.Time
	}

	return &rule, nil
}
