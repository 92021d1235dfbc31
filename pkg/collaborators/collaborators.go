// Package collaborators provides the engine's implementations of the
// external services actions depend on: email delivery, task creation,
// in-app notifications and CRM table access.
//
// Production deployments hand outbound work to the message bus, where the
// dedicated delivery services consume it, and read CRM tables straight from
// Postgres. Development deployments log instead of delivering.
package collaborators

import (
	"context"
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/protocol"
)

// NewLog returns collaborators that log every call and deliver nothing.
// Used by development setups without a broker or CRM database.
func NewLog(logger *slog.Logger) protocol.Collaborators {
	l := logCollaborators{logger: logger.With("module", "collaborators")}

	return protocol.Collaborators{
		Mailer: l,
		Tasks:  l,
		Notify: l,
		Store:  memoryStore{},
	}
}

type logCollaborators struct {
	logger *slog.Logger
}

func (l logCollaborators) Send(_ context.Context, email protocol.Email) error {
	l.logger.Info("Email (not delivered)", "to", email.To, "subject", email.Subject)

	return nil
}

func (l logCollaborators) Create(_ context.Context, task protocol.Task) error {
	l.logger.Info("Task (not created)", "title", task.Title, "priority", task.Priority)

	return nil
}

func (l logCollaborators) Notify(_ context.Context, notification protocol.Notification) error {
	l.logger.Info("Notification (not sent)",
		"target", notification.Target,
		"title", notification.Title,
		"type", notification.Type)

	return nil
}

// memoryStore satisfies fetch_data and update_status nodes in development:
// updates are accepted and dropped, reads return no rows.
type memoryStore struct{}

func (memoryStore) UpdateRow(context.Context, string, string, map[string]any) error {
	return nil
}

func (memoryStore) FetchRows(context.Context, string, map[string]any) ([]map[string]any, error) {
	return []map[string]any{}, nil
}
