package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/meridiancrm/meridian/pkg/channels/gochannel"
	"github.com/meridiancrm/meridian/pkg/channels/kafka"
	"github.com/meridiancrm/meridian/pkg/eventbus"
)

// NewEventBus creates the event bus for a service. Kafka is the production
// transport; gochannel keeps everything in-process for development. The
// broker list only applies to kafka.
func NewEventBus(provider, serviceName, kafkaBrokers string, logger *slog.Logger) eventbus.EventBus {
	pub, sub, err := createChannel(provider, serviceName, kafkaBrokers, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create %s pub/sub: %w", provider, err))
	}

	return eventbus.NewWatermillEventBus(pub, sub, logger)
}

// NewBusPublisher creates a bare watermill publisher on the same transport,
// used by the outbound collaborators.
func NewBusPublisher(provider, serviceName, kafkaBrokers string, logger *slog.Logger) message.Publisher {
	pub, _, err := createChannel(provider, serviceName, kafkaBrokers, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create %s publisher: %w", provider, err))
	}

	return pub
}

func createChannel(provider, serviceName, kafkaBrokers string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		return kafka.CreateChannel(wmLogger, serviceName, kafkaBrokers)
	case "gochannel":
		return gochannel.CreateChannel(wmLogger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
