package cmd

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/meridiancrm/meridian/pkg/collaborators"
	"github.com/meridiancrm/meridian/pkg/protocol"
)

// NewCollaborators assembles the services actions run against. With a bus
// publisher, outbound email, tasks and notifications go to the broker; with
// a CRM database URL, record reads and writes hit Postgres directly. Missing
// pieces fall back to the logging collaborators, so a development engine
// runs with no broker and no CRM database at all.
//
// The returned closer releases the CRM database connection when one was
// opened.
func NewCollaborators(
	ctx context.Context,
	busProvider string,
	serviceName string,
	kafkaBrokers string,
	crmDatabaseURL string,
	logger *slog.Logger,
) (protocol.Collaborators, func() error) {
	collab := collaborators.NewLog(logger)
	closer := func() error { return nil }

	if busProvider != "" {
		outbound := collaborators.NewBusOutbound(NewBusPublisher(busProvider, serviceName, kafkaBrokers, logger))
		collab.Mailer = outbound
		collab.Tasks = outbound
		collab.Notify = outbound

		logger.InfoContext(ctx, "Outbound collaborators on message bus", "provider", busProvider)
	}

	if crmDatabaseURL != "" {
		database, err := sql.Open("postgres", crmDatabaseURL)
		if err != nil {
			panic("failed to open CRM database: " + err.Error())
		}

		if err := database.PingContext(ctx); err != nil {
			panic("failed to ping CRM database: " + err.Error())
		}

		collab.Store = collaborators.NewSQLStore(database)
		closer = database.Close

		logger.InfoContext(ctx, "CRM store on Postgres")
	}

	return collab, closer
}
