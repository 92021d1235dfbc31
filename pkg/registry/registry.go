// Package registry resolves node types to action factories and validates
// node configuration against each factory's schema.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/meridiancrm/meridian/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) Register(factory protocol.ActionFactory) {
	r.factories[factory.ID()] = factory
	r.logger.Debug("Registered action factory", "type", factory.ID())
}

// Create builds an action from an already-interpolated node data bag.
func (r *Registry) Create(actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	return factory.Create(config)
}

// ValidateConfig checks raw node data against the factory schema. Runs at
// save time, before any interpolation, so template tokens are still present
// and only shape problems are reported.
func (r *Registry) ValidateConfig(actionType string, config map[string]any) error {
	factory, ok := r.factories[actionType]
	if !ok {
		return fmt.Errorf("action type '%s' not registered", actionType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshaling schema for '%s': %w", actionType, err)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("validating config for '%s': %w", actionType, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid config for '%s': %s", actionType, strings.Join(details, "; "))
	}

	return nil
}

// HealthCheck reports whether the registry is usable, which requires at
// least one registered action factory.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "No action factories registered", false
	}

	return fmt.Sprintf("%d action factories registered", len(r.factories)), true
}

// Available returns the registered action types in sorted order.
func (r *Registry) Available() []string {
	types := make([]string, 0, len(r.factories))
	for actionType := range r.factories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}

// Schema returns the config schema for an action type, or nil when the
// type is unknown.
func (r *Registry) Schema(actionType string) map[string]any {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil
	}

	return factory.Schema()
}
