package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/persistence/file"
	"github.com/meridiancrm/meridian/pkg/persistence/postgresql"
)

// NewPersistence selects a storage backend from the database URL scheme.
// postgres:// URLs get the Postgres implementation; anything else is
// treated as a file path for development.
func NewPersistence(ctx context.Context, databaseURL string, logger *slog.Logger) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic("failed to connect to postgres: " + err.Error())
		}

		logger.Info("Using postgres persistence")

		return p
	default:
		logger.Info("Using file persistence", "root", databaseURL)

		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	return parts[0]
}
