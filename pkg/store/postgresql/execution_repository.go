package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

const executionColumns = `id, campaign_id, lead_id, template_id, sequence_id, step_index, channel,
	scheduled_for, status, attempts, last_attempt, error_message, created_at, updated_at`

// ExecutionRepository handles execution rows.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save inserts or overwrites the execution by ID.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	if err := execution.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			scheduled_for = EXCLUDED.scheduled_for,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_attempt = EXCLUDED.last_attempt,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.CampaignID,
		execution.LeadID,
		execution.TemplateID,
		nullString(execution.SequenceID),
		execution.StepIndex,
		string(execution.Channel),
		execution.ScheduledFor,
		string(execution.Status),
		execution.Attempts,
		nullTime(execution.LastAttempt),
		nullString(execution.ErrorMessage),
		execution.CreatedAt,
		execution.UpdatedAt,
	)
	if err != nil {
		return store.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// GetByID returns the execution with the given ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrExecutionNotFound
		}

		return nil, store.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// ListBy returns executions matching a single column filter.
func (r *ExecutionRepository) ListBy(ctx context.Context, column string, value any) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE ` + column + ` = $1`

	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions by %s: %w", column, err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// Due returns up to limit scheduled executions whose scheduled_for has
// passed, earliest first.
func (r *ExecutionRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, string(models.ExecutionStatusScheduled), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due executions: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// Claim is the compare-and-swap scheduled -> executing transition.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, now time.Time) (*models.Execution, error) {
	query := `
		UPDATE executions
		SET status = $1, attempts = attempts + 1, last_attempt = $2, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + executionColumns

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query,
		string(models.ExecutionStatusExecuting),
		now.UTC(),
		id,
		string(models.ExecutionStatusScheduled),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Missing or not scheduled: distinguish for the caller.
			_, getErr := r.GetByID(ctx, id)
			if store.IsExecutionNotFound(getErr) {
				return nil, store.ErrExecutionNotFound
			}

			return nil, store.ErrExecutionNotClaimable
		}

		return nil, store.NewExecutionError("Claim", id, err)
	}

	return execution, nil
}

// Delete removes an execution, reporting whether it existed.
func (r *ExecutionRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE id = $1`, id)
	if err != nil {
		return false, store.NewExecutionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// CountByStatus returns execution counts grouped by status.
func (r *ExecutionRepository) CountByStatus(ctx context.Context, campaignID string) (map[models.ExecutionStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM executions WHERE ($1 = '' OR campaign_id = $1) GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ExecutionStatus]int)

	for rows.Next() {
		var (
			status string
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}

		counts[models.ExecutionStatus(status)] = count
	}

	return counts, rows.Err()
}

// PurgeTerminal deletes terminal executions older than the cutoff.
func (r *ExecutionRepository) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	query := `DELETE FROM executions WHERE status IN ($1, $2) AND updated_at < $3`

	result, err := r.db.ExecContext(ctx, query,
		string(models.ExecutionStatusCompleted),
		string(models.ExecutionStatusFailed),
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge executions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}

// Clear removes all executions.
func (r *ExecutionRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM executions`)

	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution    models.Execution
		sequenceID   sql.NullString
		channel      string
		status       string
		lastAttempt  sql.NullTime
		errorMessage sql.NullString
	)

	err := row.Scan(
		&execution.ID,
		&execution.CampaignID,
		&execution.LeadID,
		&execution.TemplateID,
		&sequenceID,
		&execution.StepIndex,
		&channel,
		&execution.ScheduledFor,
		&status,
		&execution.Attempts,
		&lastAttempt,
		&errorMessage,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.SequenceID = sequenceID.String
	execution.Channel = models.Channel(channel)
	execution.Status = models.ExecutionStatus(status)
	execution.ErrorMessage = errorMessage.String

	if lastAttempt.Valid {
		attempt := lastAttempt.Time
		execution.LastAttempt = &attempt
	}

	return &execution, nil
}

func collectExecutions(rows *sql.Rows) ([]*models.Execution, error) {
	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *value, Valid: true}
}

// store.Store forwarding

func (s *Store) SaveExecution(ctx context.Context, execution *models.Execution) error {
	return s.executionRepo.Save(ctx, execution)
}

func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return s.executionRepo.GetByID(ctx, id)
}

func (s *Store) ExecutionsByCampaign(ctx context.Context, campaignID string) ([]*models.Execution, error) {
	return s.executionRepo.ListBy(ctx, "campaign_id", campaignID)
}

func (s *Store) ExecutionsByLead(ctx context.Context, leadID string) ([]*models.Execution, error) {
	return s.executionRepo.ListBy(ctx, "lead_id", leadID)
}

func (s *Store) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return s.executionRepo.ListBy(ctx, "status", string(status))
}

func (s *Store) ExecutionsBySequence(ctx context.Context, sequenceID string) ([]*models.Execution, error) {
	return s.executionRepo.ListBy(ctx, "sequence_id", sequenceID)
}

func (s *Store) DueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	return s.executionRepo.Due(ctx, now, limit)
}

func (s *Store) ClaimExecution(ctx context.Context, id string, now time.Time) (*models.Execution, error) {
	return s.executionRepo.Claim(ctx, id, now)
}

func (s *Store) DeleteExecution(ctx context.Context, id string) (bool, error) {
	return s.executionRepo.Delete(ctx, id)
}

func (s *Store) CountByStatus(ctx context.Context, campaignID string) (map[models.ExecutionStatus]int, error) {
	return s.executionRepo.CountByStatus(ctx, campaignID)
}

func (s *Store) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	return s.executionRepo.PurgeTerminal(ctx, olderThan)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.executionRepo.Clear(ctx)
}
