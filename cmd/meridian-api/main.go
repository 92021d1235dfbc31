package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/meridiancrm/meridian/pkg/cmd"
	"github.com/meridiancrm/meridian/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "meridian-api",
		Usage:                 "Create and manage CRM workflows and automation rules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Meridian API")

			persistence := cmd.NewPersistence(ctx, command.String("database-url"), logger)
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "meridian-api", command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			collab, closeCollab := cmd.NewCollaborators(
				ctx,
				command.String("event-bus"),
				"meridian-api",
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

			api := NewAPI(logger, persistence, registry, eventBus)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
