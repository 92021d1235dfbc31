package email

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

type fakeMailer struct {
	sent []protocol.Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, email protocol.Email) error {
	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, email)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestFactory(t *testing.T) {
	factory := NewFactory(&fakeMailer{})
	assert.Equal(t, "email", factory.ID())

	action, err := factory.Create(map[string]any{"to": "sales@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, action)
}

func TestAction_Execute(t *testing.T) {
	mailer := &fakeMailer{}
	action, err := NewAction(map[string]any{
		"to":      "sales@example.com",
		"subject": "New lead: Acme",
		"body":    "Acme just signed up.",
	}, mailer)
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), &models.Execution{}, testLogger())
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "sales@example.com", mailer.sent[0].To)
	assert.Equal(t, "New lead: Acme", mailer.sent[0].Subject)
	assert.Equal(t, "sales@example.com", out["sent_to"])
}

func TestAction_Execute_InvalidRecipient(t *testing.T) {
	tests := []struct {
		name string
		to   string
	}{
		{"empty", ""},
		{"no at sign", "sales.example.com"},
		{"nothing after at", "sales@"},
		{"nothing before at", "@example.com"},
		{"whitespace", "sales @example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			action, err := NewAction(map[string]any{"to": tt.to}, mailer)
			require.NoError(t, err)

			_, err = action.Execute(context.Background(), &models.Execution{}, testLogger())
			require.ErrorIs(t, err, ErrInvalidRecipient)
			assert.Empty(t, mailer.sent)
		})
	}
}

func TestAction_Execute_DeliveryRejected(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp unavailable")}
	action, err := NewAction(map[string]any{"to": "ops@example.com"}, mailer)
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), &models.Execution{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp unavailable")
}
