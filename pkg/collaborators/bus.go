package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/meridiancrm/meridian/pkg/protocol"
)

// Topics consumed by the CRM delivery services.
const (
	OutboundEmailTopic = "meridian.outbound-email"
	TasksTopic         = "meridian.tasks"
	NotificationsTopic = "meridian.notifications"
)

// BusOutbound hands outbound email, tasks and notifications to the message
// bus. Delivery itself happens in the consuming services; a publish failure
// is reported as a node failure so the error policy can act.
type BusOutbound struct {
	publisher message.Publisher
}

// NewBusOutbound creates bus-backed Mailer, TaskService and Notifier
// implementations on a shared publisher.
func NewBusOutbound(publisher message.Publisher) *BusOutbound {
	return &BusOutbound{publisher: publisher}
}

func (b *BusOutbound) Send(_ context.Context, email protocol.Email) error {
	return b.publish(OutboundEmailTopic, email)
}

func (b *BusOutbound) Create(_ context.Context, task protocol.Task) error {
	return b.publish(TasksTopic, task)
}

func (b *BusOutbound) Notify(_ context.Context, notification protocol.Notification) error {
	return b.publish(NotificationsTopic, notification)
}

func (b *BusOutbound) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}
