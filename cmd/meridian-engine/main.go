package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/meridiancrm/meridian/pkg/cmd"
	"github.com/meridiancrm/meridian/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "meridian-engine",
		Usage:                 "Run the workflow engine: consume CRM events, fire triggers, execute graphs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine instance ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (kafka event bus only)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "crm-database-url",
				Usage:   "CRM database URL for record reads and writes (optional)",
				Sources: cli.EnvVars("CRM_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the CRM event queue (empty disables the queue source)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the CRM event queue",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list the CRM pushes mutation events onto",
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("meridian-engine").With("engine_id", engineID)

			logger.InfoContext(ctx, "Initializing Meridian Engine")

			persistence := cmd.NewPersistence(ctx, command.String("database-url"), logger)
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "meridian-engine", command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			collab, closeCollab := cmd.NewCollaborators(
				ctx,
				command.String("event-bus"),
				"meridian-engine",
				command.String("kafka-brokers"),
				command.String("crm-database-url"),
				logger,
			)
			defer func() {
				if err := closeCollab(); err != nil {
					logger.ErrorContext(ctx, "Failed to close collaborators", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, collab)

			manager := NewEngineManager(
				engineID,
				persistence,
				eventBus,
				registry,
				queueConfig(command),
				logger,
			)

			if err := manager.Run(ctx); err != nil {
				logger.ErrorContext(ctx, "Engine stopped with error", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
