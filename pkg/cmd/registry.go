// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/actions/email"
	"github.com/meridiancrm/meridian/pkg/actions/fetchdata"
	"github.com/meridiancrm/meridian/pkg/actions/notification"
	"github.com/meridiancrm/meridian/pkg/actions/task"
	"github.com/meridiancrm/meridian/pkg/actions/updatestatus"
	"github.com/meridiancrm/meridian/pkg/protocol"
	"github.com/meridiancrm/meridian/pkg/registry"
)

// NewRegistry creates an action registry with every native action type
// bound to the given collaborators.
func NewRegistry(logger *slog.Logger, collab protocol.Collaborators) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(email.NewFactory(collab.Mailer))
	reg.Register(task.NewFactory(collab.Tasks))
	reg.Register(notification.NewFactory(collab.Notify))
	reg.Register(updatestatus.NewFactory(collab.Store))
	reg.Register(fetchdata.NewFactory(collab.Store))

	return reg
}
