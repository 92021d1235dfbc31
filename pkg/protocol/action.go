// Package protocol defines the contracts between the engine core and its
// pluggable actions and external collaborators.
package protocol

import (
	"context"
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/models"
)

// Action is one executable side-effect node. Execute receives the node's
// interpolated data bag via its factory configuration and the run's current
// context; it returns an output bag merged into the execution context under
// the node's output key. Actions never retry internally — the error policy
// layer owns retries.
type Action interface {
	Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates action instances from a node's data bag.
type ActionFactory interface {
	// Create builds an action from the interpolated node data.
	Create(config map[string]any) (Action, error)

	// ID returns the node type this factory serves.
	ID() string

	// Schema returns the JSON schema for the node data bag, used by the
	// save-time validator.
	Schema() map[string]any
}
