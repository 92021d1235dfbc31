// Package notification provides the send-notification action for workflow
// nodes.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

const defaultType = "info"

var allowedTypes = map[string]bool{
	"info":    true,
	"success": true,
	"warning": true,
	"error":   true,
}

// Action sends an in-app notification to a CRM user.
type Action struct {
	Target  string
	Title   string
	Message string
	Type    string

	notifier protocol.Notifier
}

func NewAction(config map[string]any, notifier protocol.Notifier) (*Action, error) {
	notificationType, _ := config["notification_type"].(string)
	if notificationType == "" {
		notificationType = defaultType
	}

	if !allowedTypes[notificationType] {
		return nil, fmt.Errorf("unknown notification type %q", notificationType)
	}

	target, _ := config["target"].(string)
	title, _ := config["title"].(string)
	message, _ := config["message"].(string)

	return &Action{
		Target:   target,
		Title:    title,
		Message:  message,
		Type:     notificationType,
		notifier: notifier,
	}, nil
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "notification_action", "type", a.Type)

	target := a.Target
	if target == "" {
		// Fall back to the record owner from the run context.
		target, _ = execution.Context["owner"].(string)
	}

	err := a.notifier.Notify(ctx, protocol.Notification{
		Target:  target,
		Title:   a.Title,
		Message: a.Message,
		Type:    a.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("notification failed: %w", err)
	}

	logger.InfoContext(ctx, "Notification sent", "target", target)

	return map[string]any{"notified": target}, nil
}
