package fetchdata

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
	return "fetch_data"
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.store)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table":           map[string]any{"type": "string"},
			"filters":         map[string]any{"type": "object"},
			"output_variable": map[string]any{"type": "string"},
		},
		"required": []any{"table"},
	}
}
