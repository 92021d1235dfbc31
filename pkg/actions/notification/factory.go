package notification

import (
	"github.com/meridiancrm/meridian/pkg/protocol"
)

// Factory creates notification actions bound to the notifier collaborator.
type Factory struct {
	notifier protocol.Notifier
}

func NewFactory(notifier protocol.Notifier) *Factory {
	return &Factory{notifier: notifier}
}

func (f *Factory) ID() string {
	return "notification"
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.notifier)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target":  map[string]any{"type": "string"},
			"title":   map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
			"notification_type": map[string]any{
				"type": "string",
				"enum": []any{"info", "success", "warning", "error"},
			},
		},
	}
}
