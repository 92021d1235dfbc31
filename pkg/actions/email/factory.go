package email

import (
	"github.com/meridiancrm/meridian/pkg/protocol"
)

// Factory creates email actions bound to a mailer.
type Factory struct {
	mailer protocol.Mailer
}

func NewFactory(mailer protocol.Mailer) *Factory {
	return &Factory{mailer: mailer}
}

func (f *Factory) ID() string {
	return "email"
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.mailer)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address, may contain {{path}} placeholders",
			},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
		},
		"required": []any{"to"},
	}
}
