package protocol

import (
	"context"
	"time"
)

// Email is an outbound message handed to the delivery collaborator.
type Email struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Attachment []byte `json:"attachment,omitempty"`
}

// Task is a CRM task created by a workflow.
type Task struct {
	Title         string    `json:"title"`
	Priority      string    `json:"priority"`
	DueDate       time.Time `json:"due_date"`
	RelatedEntity string    `json:"related_entity,omitempty"`
}

// Notification is an in-app notification for a CRM user.
type Notification struct {
	Target  string `json:"target"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"` // info, success, warning, error
}

// Mailer delivers email. A returned error means delivery was rejected or
// the recipient is invalid; the engine treats either as a node failure.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// TaskService creates CRM tasks.
type TaskService interface {
	Create(ctx context.Context, task Task) error
}

// Notifier sends in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Store is the engine's view of the hosted CRM tables: single-row updates
// keyed by entity id and filtered reads. Implementations must report
// unknown tables and fields as errors so the error policy can act.
type Store interface {
	UpdateRow(ctx context.Context, table, id string, fields map[string]any) error
	FetchRows(ctx context.Context, table string, filters map[string]any) ([]map[string]any, error)
}

// Collaborators bundles the external services actions depend on.
type Collaborators struct {
	Mailer Mailer
	Tasks  TaskService
	Notify Notifier
	Store  Store
}
