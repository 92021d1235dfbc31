// Package queue consumes CRM record mutations from a redis list and feeds
// them to the engine as domain events.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/meridiancrm/meridian/pkg/eventbus"
	"github.com/meridiancrm/meridian/pkg/events"
)

const (
	defaultQueue   = "meridian:crm-events"
	popTimeout     = 1 * time.Second
	errorPause     = 1 * time.Second
	connectTimeout = 5 * time.Second
)

// Config is the redis connection plus the list the CRM pushes mutation
// records onto.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// Source drains the CRM mutation queue. Each popped record must decode to a
// DomainEvent; undecodable records are logged and dropped so one bad write
// cannot wedge the queue.
type Source struct {
	config  Config
	handler eventbus.DomainEventHandler
	logger  *slog.Logger

	client redis.UniversalClient
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(config Config, handler eventbus.DomainEventHandler, logger *slog.Logger) *Source {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.Queue == "" {
		config.Queue = defaultQueue
	}

	return &Source{
		config:  config,
		handler: handler,
		stopCh:  make(chan struct{}),
		logger:  logger.With("module", "queue_source", "queue", config.Queue),
	}
}

// Start connects to redis and begins consuming in the background.
func (s *Source) Start(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.config.Addr,
		Password: s.config.Password,
		DB:       s.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", s.config.Addr, err)
	}

	s.logger.InfoContext(ctx, "Connected to redis", "addr", s.config.Addr, "db", s.config.DB)

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting CRM event consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "CRM event consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context canceled, stopping CRM event consumer")

			return
		default:
			if err := s.processMessage(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing CRM event", "error", err)
				time.Sleep(errorPause)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, popTimeout, s.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("popping from %s: %w", s.config.Queue, err)
	}

	if len(result) < 2 {
		return nil
	}

	var event events.DomainEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		s.logger.WarnContext(ctx, "Dropping undecodable CRM record", "error", err)

		return nil
	}

	if err := event.Validate(); err != nil {
		s.logger.WarnContext(ctx, "Dropping invalid CRM event", "error", err)

		return nil
	}

	if err := s.handler(ctx, &event); err != nil {
		s.logger.ErrorContext(ctx, "Event handling failed", "event", event.Name, "error", err)
	}

	return nil
}

// Stop drains the consumer and closes the redis connection.
func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue source")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			return err
		}
	}

	return nil
}
