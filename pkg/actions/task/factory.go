package task

import (
	"github.com/meridiancrm/meridian/pkg/protocol"
)

// Factory creates task actions bound to the task collaborator.
type Factory struct {
	tasks protocol.TaskService
}

func NewFactory(tasks protocol.TaskService) *Factory {
	return &Factory{tasks: tasks}
}

func (f *Factory) ID() string {
	return "task"
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.tasks)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"priority": map[string]any{
				"type": "string",
				"enum": []any{"low", "medium", "high"},
			},
			"due_offset_days": map[string]any{
				"type":    "number",
				"minimum": 0,
			},
		},
		"required": []any{"title"},
	}
}
