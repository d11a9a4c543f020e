// Package store provides the data storage abstraction layer for executions,
// recurrences and communication records.
package store

import (
	"context"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
)

// Store is the authoritative, queryable state for all executions. It is the
// only shared mutable resource of the engine; implementations must be safe
// for concurrent use so that overlapping ticks, manual force-process calls
// and multiple engine instances cannot double-claim a record.
type Store interface {
	ExecutionStore
	RecurrenceStore
	CommunicationStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type ExecutionStore interface {
	// SaveExecution inserts or overwrites by ID
	SaveExecution(ctx context.Context, execution *models.Execution) error

	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionsByCampaign(ctx context.Context, campaignID string) ([]*models.Execution, error)
	ExecutionsByLead(ctx context.Context, leadID string) ([]*models.Execution, error)
	ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error)
	ExecutionsBySequence(ctx context.Context, sequenceID string) ([]*models.Execution, error)

	// DueExecutions returns up to limit executions with status scheduled
	// and scheduledFor <= now, earliest first. The limit is a deliberate
	// backpressure valve bounding per-tick work.
	DueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	// ClaimExecution atomically transitions scheduled -> executing,
	// increments Attempts and stamps LastAttempt. It returns
	// ErrExecutionNotClaimable if the record is not currently scheduled,
	// which prevents double-processing of the same due record.
	ClaimExecution(ctx context.Context, id string, now time.Time) (*models.Execution, error)

	DeleteExecution(ctx context.Context, id string) (bool, error)

	// CountByStatus returns execution counts grouped by status,
	// optionally filtered by campaign (empty campaignID means all)
	CountByStatus(ctx context.Context, campaignID string) (map[models.ExecutionStatus]int, error)

	// PurgeTerminal deletes completed and permanently failed executions
	// whose last update is older than the cutoff. Administrative only;
	// nothing calls it automatically.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)

	// Clear removes all executions. Testing and administrative use only.
	Clear(ctx context.Context) error
}

type RecurrenceStore interface {
	SaveRecurrence(ctx context.Context, recurrence *models.Recurrence) error
	RecurrenceByID(ctx context.Context, id string) (*models.Recurrence, error)
	Recurrences(ctx context.Context) ([]*models.Recurrence, error)
	DueRecurrences(ctx context.Context, now time.Time) ([]*models.Recurrence, error)
	DeleteRecurrence(ctx context.Context, id string) (bool, error)
}

type CommunicationStore interface {
	SaveCommunication(ctx context.Context, record *models.CommunicationRecord) error
	CommunicationsByLead(ctx context.Context, leadID string) ([]*models.CommunicationRecord, error)
}
