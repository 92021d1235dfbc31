// Package fetchdata provides the record-lookup action for workflow nodes.
package fetchdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

var ErrMissingTable = errors.New("fetch requires a table name")

// Action reads rows from a CRM table and publishes them into the execution
// context under the configured output variable so later nodes can reference
// them in templates and loop bindings.
type Action struct {
	Table     string
	Filters   map[string]any
	OutputKey string

	store protocol.Store
}

func NewAction(config map[string]any, store protocol.Store) (*Action, error) {
	table, _ := config["table"].(string)

	filters, _ := config["filters"].(map[string]any)

	outputKey, _ := config["output_variable"].(string)
	if outputKey == "" {
		outputKey, _ = config["id"].(string)
	}
	if outputKey == "" {
		outputKey = "rows"
	}

	return &Action{
		Table:     table,
		Filters:   filters,
		OutputKey: outputKey,
		store:     store,
	}, nil
}

func (a *Action) Execute(ctx context.Context, _ *models.Execution, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "fetch_data_action", "table", a.Table)

	if a.Table == "" {
		return nil, ErrMissingTable
	}

	rows, err := a.store.FetchRows(ctx, a.Table, a.Filters)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", a.Table, err)
	}

	logger.InfoContext(ctx, "Rows fetched", "count", len(rows))

	// Normalized to []any so conditions and loops treat the result like any
	// other context value.
	items := make([]any, len(rows))
	for i, row := range rows {
		items[i] = row
	}

	return map[string]any{a.OutputKey: items}, nil
}
