// Package eventbus provides the messaging layer between the CRM, the engine
// and any observers of automation activity.
package eventbus

import (
	"context"

	"github.com/meridiancrm/meridian/pkg/events"
)

// Event is an engine lifecycle notification.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes one decoded lifecycle event.
type EventHandler func(ctx context.Context, event any) error

// DomainEventHandler processes one CRM record mutation.
type DomainEventHandler func(ctx context.Context, event *events.DomainEvent) error

// EventPublisher publishes engine lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber consumes engine lifecycle events.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// DomainEventPublisher puts CRM mutations on the bus; the queue source uses
// it after draining the redis stream.
type DomainEventPublisher interface {
	PublishDomainEvent(ctx context.Context, event *events.DomainEvent) error
}

// DomainEventSubscriber feeds CRM mutations to the engine.
type DomainEventSubscriber interface {
	HandleDomainEvents(handler DomainEventHandler)
	SubscribeDomainEvents(ctx context.Context) error
}

// EventBus is the full bus surface.
type EventBus interface {
	EventPublisher
	EventSubscriber
	DomainEventPublisher
	DomainEventSubscriber
	Close() error
	GenerateID() string
}
