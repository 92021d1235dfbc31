// Package events defines the CRM domain event contract and the engine's
// lifecycle notifications.
package events

import (
	"errors"
	"time"
)

type EventType string

// Bus topics.
const (
	DomainEventsTopic = "meridian.domain-events" // CRM record mutations in
	EngineEventsTopic = "meridian.engine-events" // Execution lifecycle out
)

const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	NodeFailedEvent         EventType = "node.failed"
)

// DomainEvent is what CRM collaborators deliver when a record mutates: the
// event name ("lead.created", "deal.updated", ...), the entity coordinates,
// the row payload, and which fields changed for update events.
type DomainEvent struct {
	Name          string         `json:"name"        validate:"required"`
	EntityType    string         `json:"entityType"  validate:"required"`
	EntityID      string         `json:"entityId"    validate:"required"`
	Payload       map[string]any `json:"payload"`
	ChangedFields []string       `json:"changedFields,omitempty"`
}

// Validate checks the required fields of the contract.
func (e *DomainEvent) Validate() error {
	if e.Name == "" {
		return errors.New("domain event name is required")
	}

	if e.EntityType == "" || e.EntityID == "" {
		return errors.New("domain event entity coordinates are required")
	}

	return nil
}

// Changed reports whether the event touched any of the given fields. An
// empty watch list means any change qualifies.
func (e *DomainEvent) Changed(watchFields []string) bool {
	if len(watchFields) == 0 {
		return true
	}

	for _, watched := range watchFields {
		for _, changed := range e.ChangedFields {
			if watched == changed {
				return true
			}
		}
	}

	return false
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	TriggerEvent string `json:"trigger_event"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	DurationMs  int64  `json:"duration_ms"`
	StepsTaken  int    `json:"steps_taken"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionSuspended struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	ResumeAt    time.Time `json:"resume_at"`
}

func (e ExecutionSuspended) GetType() EventType { return ExecutionSuspendedEvent }

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	Attempts    int    `json:"attempts"`
}

func (e NodeFailed) GetType() EventType { return NodeFailedEvent }
