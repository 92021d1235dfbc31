// Package email provides the send-email action for workflow nodes.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

var ErrInvalidRecipient = errors.New("invalid email recipient")

// Action sends one email through the delivery collaborator. The to, subject
// and body fields arrive already interpolated.
type Action struct {
	To      string
	Subject string
	Body    string

	mailer protocol.Mailer
}

// NewAction creates an email action from an interpolated node data bag.
func NewAction(config map[string]any, mailer protocol.Mailer) (*Action, error) {
	to, _ := config["to"].(string)
	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	return &Action{
		To:      to,
		Subject: subject,
		Body:    body,
		mailer:  mailer,
	}, nil
}

func (a *Action) Execute(ctx context.Context, _ *models.Execution, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "email_action", "to", a.To)

	if !validRecipient(a.To) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, a.To)
	}

	err := a.mailer.Send(ctx, protocol.Email{
		To:      a.To,
		Subject: a.Subject,
		Body:    a.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("email delivery rejected: %w", err)
	}

	logger.InfoContext(ctx, "Email sent")

	return map[string]any{"sent_to": a.To}, nil
}

func validRecipient(to string) bool {
	at := strings.Index(to, "@")

	return at > 0 && at < len(to)-1 && !strings.ContainsAny(to, " \t\n")
}
