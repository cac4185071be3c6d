// Package postgresql provides PostgreSQL persistence for agents, tasks and triggers.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/persistence/sqlbase"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	agents     *AgentRepository
	tasks      *TaskRepository
	triggers   *TriggerRepository
	executions *TriggerExecutionRepository
}

// NewPersistence connects to PostgreSQL through the pgx driver and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return New(database, logger), nil
}

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:         db,
		logger:     logger,
		agents:     &AgentRepository{db: db},
		tasks:      &TaskRepository{db: db},
		triggers:   &TriggerRepository{db: db, logger: logger},
		executions: &TriggerExecutionRepository{db: db, logger: logger},
	}
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

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Agents() persistence.AgentRepository {
	return p.agents
}

func (p *Persistence) Tasks() persistence.TaskRepository {
	return p.tasks
}

func (p *Persistence) Triggers() persistence.TriggerRepository {
	return p.triggers
}

func (p *Persistence) TriggerExecutions() persistence.TriggerExecutionRepository {
	return p.executions
}

// hardErrorClasses are SQLSTATE classes a retry cannot fix: data
// exceptions, integrity violations and syntax or access errors.
var hardErrorClasses = []string{"22", "23", "42"}

// classify wraps err for the repository layer, marking missing rows with
// notFound and non-transient PostgreSQL errors with ErrHardDatabase.
func classify(op, entity, id string, err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewRepositoryError(op, entity, id, notFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		for _, class := range hardErrorClasses {
			if pgErr.Code[:2] == class {
				return persistence.NewRepositoryError(op, entity, id, fmt.Errorf("%w: %w", persistence.ErrHardDatabase, err))
			}
		}
	}

	return persistence.NewRepositoryError(op, entity, id, err)
}
