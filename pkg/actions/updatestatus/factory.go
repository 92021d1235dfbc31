package updatestatus

import (
	"github.com/meridiancrm/meridian/pkg/protocol"
)

type Factory struct {
	store protocol.Store
}

func NewFactory(store protocol.Store) *Factory {
	return &Factory{store: store}
}

func (f *Factory) ID() string {
	return "update_status"
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.store)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table": map[string]any{"type": "string"},
			"field": map[string]any{"type": "string"},
			"value": map[string]any{"type": "string"},
		},
		"required": []any{"field"},
	}
}
