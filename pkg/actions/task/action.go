// Package task provides the create-task action for workflow nodes.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

var ErrMissingTitle = errors.New("task title is required")

const defaultPriority = "medium"

// Action creates a CRM task. Due date is computed from now plus the
// configured day offset at execution time, not at save time.
type Action struct {
	Title         string
	Priority      string
	DueOffsetDays int

	tasks protocol.TaskService
}

func NewAction(config map[string]any, tasks protocol.TaskService) (*Action, error) {
	title, _ := config["title"].(string)
	if title == "" {
		return nil, ErrMissingTitle
	}

	priority, _ := config["priority"].(string)
	if priority == "" {
		priority = defaultPriority
	}

	offset := 0
	if v, ok := config["due_offset_days"].(float64); ok {
		offset = int(v)
	}

	return &Action{
		Title:         title,
		Priority:      priority,
		DueOffsetDays: offset,
		tasks:         tasks,
	}, nil
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "task_action")

	related, _ := execution.Context["entityId"].(string)
	dueDate := time.Now().UTC().AddDate(0, 0, a.DueOffsetDays)

	err := a.tasks.Create(ctx, protocol.Task{
		Title:         a.Title,
		Priority:      a.Priority,
		DueDate:       dueDate,
		RelatedEntity: related,
	})
	if err != nil {
		return nil, fmt.Errorf("task creation failed: %w", err)
	}

	logger.InfoContext(ctx, "Task created", "title", a.Title, "due", dueDate)

	return map[string]any{"task_title": a.Title, "task_due": dueDate}, nil
}
