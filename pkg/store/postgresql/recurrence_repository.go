package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

const recurrenceColumns = `id, campaign_id, lead_ids, cron_expression, next_due_at, active, created_at, updated_at`

// RecurrenceRepository handles recurring enrollment rows.
type RecurrenceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRecurrenceRepository(db *sql.DB, logger *slog.Logger) *RecurrenceRepository {
	return &RecurrenceRepository{db: db, logger: logger}
}

// Save inserts or overwrites the recurrence by ID.
func (r *RecurrenceRepository) Save(ctx context.Context, recurrence *models.Recurrence) error {
	if err := recurrence.Validate(); err != nil {
		return err
	}

	leadIDs, err := json.Marshal(recurrence.LeadIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal lead IDs: %w", err)
	}

	query := `
		INSERT INTO recurrences (` + recurrenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			lead_ids = EXCLUDED.lead_ids,
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		recurrence.ID,
		recurrence.CampaignID,
		leadIDs,
		recurrence.CronExpression,
		recurrence.NextDueAt,
		recurrence.Active,
		recurrence.CreatedAt,
		recurrence.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save recurrence %s: %w", recurrence.ID, err)
	}

	return nil
}

// GetByID returns the recurrence with the given ID.
func (r *RecurrenceRepository) GetByID(ctx context.Context, id string) (*models.Recurrence, error) {
	query := `SELECT ` + recurrenceColumns + ` FROM recurrences WHERE id = $1`

	recurrence, err := scanRecurrence(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRecurrenceNotFound
		}

		return nil, fmt.Errorf("failed to get recurrence %s: %w", id, err)
	}

	return recurrence, nil
}

// GetAll returns all recurrences.
func (r *RecurrenceRepository) GetAll(ctx context.Context) ([]*models.Recurrence, error) {
	return r.query(ctx, `SELECT `+recurrenceColumns+` FROM recurrences`)
}

// Due returns all active recurrences due at the given time.
func (r *RecurrenceRepository) Due(ctx context.Context, now time.Time) ([]*models.Recurrence, error) {
	query := `SELECT ` + recurrenceColumns + ` FROM recurrences WHERE active AND next_due_at <= $1`

	return r.query(ctx, query, now)
}

// Delete removes a recurrence, reporting whether it existed.
func (r *RecurrenceRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM recurrences WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete recurrence %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (r *RecurrenceRepository) query(ctx context.Context, query string, args ...any) ([]*models.Recurrence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurrences: %w", err)
	}
	defer rows.Close()

	var recurrences []*models.Recurrence

	for rows.Next() {
		recurrence, err := scanRecurrence(rows)
		if err != nil {
			return nil, err
		}

		recurrences = append(recurrences, recurrence)
	}

	return recurrences, rows.Err()
}

func scanRecurrence(row rowScanner) (*models.Recurrence, error) {
	var (
		recurrence models.Recurrence
		leadIDs    []byte
	)

	err := row.Scan(
		&recurrence.ID,
		&recurrence.CampaignID,
		&leadIDs,
		&recurrence.CronExpression,
		&recurrence.NextDueAt,
		&recurrence.Active,
		&recurrence.CreatedAt,
		&recurrence.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(leadIDs, &recurrence.LeadIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead IDs: %w", err)
	}

	return &recurrence, nil
}

// store.Store forwarding

func (s *Store) SaveRecurrence(ctx context.Context, recurrence *models.Recurrence) error {
	return s.recurrenceRepo.Save(ctx, recurrence)
}

func (s *Store) RecurrenceByID(ctx context.Context, id string) (*models.Recurrence, error) {
	return s.recurrenceRepo.GetByID(ctx, id)
}

func (s *Store) Recurrences(ctx context.Context) ([]*models.Recurrence, error) {
	return s.recurrenceRepo.GetAll(ctx)
}

func (s *Store) DueRecurrences(ctx context.Context, now time.Time) ([]*models.Recurrence, error) {
	return s.recurrenceRepo.Due(ctx, now)
}

func (s *Store) DeleteRecurrence(ctx context.Context, id string) (bool, error) {
	return s.recurrenceRepo.Delete(ctx, id)
}
