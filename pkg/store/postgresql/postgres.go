// Package postgresql provides the durable PostgreSQL store used in
// production deployments.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver
	_ "github.com/lib/pq"

	"github.com/hyperreach/cadence/pkg/store/sqlbase"
)

// Store implements store.Store backed by PostgreSQL. Claims are a single
// compare-and-swap UPDATE, so multiple engine instances can share one
// database without double-processing.
type Store struct {
	db                *sql.DB
	logger            *slog.Logger
	executionRepo     *ExecutionRepository
	recurrenceRepo    *RecurrenceRepository
	communicationRepo *CommunicationRepository
}

// NewStore connects, runs migrations and returns a ready store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:                database,
		logger:            logger,
		executionRepo:     NewExecutionRepository(database, logger),
		recurrenceRepo:    NewRecurrenceRepository(database, logger),
		communicationRepo: NewCommunicationRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
