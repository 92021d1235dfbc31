// Package updatestatus provides the field-update action for workflow nodes.
package updatestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

var (
	ErrMissingField  = errors.New("update requires a field name")
	ErrMissingEntity = errors.New("execution context has no entity id")
)

// Action writes one field on the record that triggered the workflow. The
// value arrives already interpolated; the target row id comes from the
// execution context, never from node configuration.
type Action struct {
	Table string
	Field string
	Value string

	store protocol.Store
}

func NewAction(config map[string]any, store protocol.Store) (*Action, error) {
	table, _ := config["table"].(string)
	field, _ := config["field"].(string)
	value, _ := config["value"].(string)

	return &Action{
		Table: table,
		Field: field,
		Value: value,
		store: store,
	}, nil
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "update_status_action", "table", a.Table, "field", a.Field)

	if a.Field == "" {
		return nil, ErrMissingField
	}

	entityID, _ := execution.Context["entityId"].(string)
	if entityID == "" {
		return nil, ErrMissingEntity
	}

	table := a.Table
	if table == "" {
		table, _ = execution.Context["entityType"].(string)
	}

	err := a.store.UpdateRow(ctx, table, entityID, map[string]any{a.Field: a.Value})
	if err != nil {
		return nil, fmt.Errorf("updating %s.%s: %w", table, a.Field, err)
	}

	logger.InfoContext(ctx, "Record updated", "entity_id", entityID)

	return map[string]any{"updated_id": entityID, "updated_field": a.Field}, nil
}
