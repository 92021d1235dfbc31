// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflows  *WorkflowRepository
	executions *ExecutionRepository
	resumes    *ResumeRepository
	batches    *BatchRepository
	schedules  *ScheduleRepository
	rules      *RuleRepository
	templates  *TemplateRepository
}

// NewPersistence opens a connection, runs migrations and returns the
// PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	p := &Persistence{db: database, logger: logger}
	p.workflows = &WorkflowRepository{db: database}
	p.executions = &ExecutionRepository{db: database}
	p.resumes = &ResumeRepository{db: database}
	p.batches = &BatchRepository{db: database}
	p.schedules = &ScheduleRepository{db: database}
	p.rules = &RuleRepository{db: database}
	p.templates = &TemplateRepository{db: database}

	return p, nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository   { return p.workflows }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Resumes() persistence.ResumeRepository       { return p.resumes }
func (p *Persistence) Batches() persistence.BatchRepository        { return p.batches }
func (p *Persistence) Schedules() persistence.ScheduleRepository   { return p.schedules }
func (p *Persistence) Rules() persistence.RuleRepository           { return p.rules }
func (p *Persistence) Templates() persistence.TemplateRepository   { return p.templates }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// toJSONB marshals a value for a JSONB column. Nil stays NULL.
func toJSONB(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}

	return data, nil
}

// fromJSONB unmarshals a JSONB column into out. NULL leaves out untouched.
func fromJSONB(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal jsonb value: %w", err)
	}

	return nil
}
