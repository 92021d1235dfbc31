package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/meridiancrm/meridian/pkg/events"
)

// WatermillEventBus carries engine lifecycle events and CRM domain events
// over any watermill publisher/subscriber pair (kafka in production,
// gochannel in tests).
type WatermillEventBus struct {
	publisher      message.Publisher
	subscriber     message.Subscriber
	subscriptions  map[events.EventType]EventHandler
	domainHandlers []DomainEventHandler
	logger         *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		logger:        logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.EngineEventsTopic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.EngineEventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event := newEngineEvent(eventType)
			if event == nil {
				msg.Nack()

				continue
			}

			if err := json.Unmarshal(msg.Payload, event); err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) PublishDomainEvent(ctx context.Context, event *events.DomainEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	// Partition by entity so updates to one record stay ordered.
	msg.Metadata.Set(events.EventMetadataKey, event.EntityType+":"+event.EntityID)
	msg.Metadata.Set(events.EventTypeMetadataKey, event.Name)

	return eb.publisher.Publish(events.DomainEventsTopic, msg)
}

func (eb *WatermillEventBus) HandleDomainEvents(handler DomainEventHandler) {
	eb.domainHandlers = append(eb.domainHandlers, handler)
}

func (eb *WatermillEventBus) SubscribeDomainEvents(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.DomainEventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event events.DomainEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				eb.logger.Error("Dropping undecodable domain event", "message_id", msg.UUID, "error", err)
				msg.Nack()

				continue
			}

			failed := false

			for _, handler := range eb.domainHandlers {
				if err := handler(ctx, &event); err != nil {
					eb.logger.Error("Domain event handler failed", "event", event.Name, "error", err)

					failed = true
				}
			}

			if failed {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func newEngineEvent(eventType events.EventType) any {
	switch eventType {
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}
	case events.ExecutionCompletedEvent:
		return &events.ExecutionCompleted{}
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}
	case events.ExecutionSuspendedEvent:
		return &events.ExecutionSuspended{}
	case events.ExecutionResumedEvent:
		return &events.ExecutionResumed{}
	case events.NodeFailedEvent:
		return &events.NodeFailed{}
	default:
		return nil
	}
}
