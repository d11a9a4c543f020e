package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hyperreach/cadence/pkg/models"
)

// CommunicationRepository handles communication history rows.
type CommunicationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewCommunicationRepository(db *sql.DB, logger *slog.Logger) *CommunicationRepository {
	return &CommunicationRepository{db: db, logger: logger}
}

// Save appends a communication record.
func (r *CommunicationRepository) Save(ctx context.Context, record *models.CommunicationRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	content, err := json.Marshal(record.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	query := `
		INSERT INTO communications (id, execution_id, campaign_id, lead_id, template_id, channel, content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ExecutionID,
		record.CampaignID,
		record.LeadID,
		record.TemplateID,
		string(record.Channel),
		content,
		record.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save communication %s: %w", record.ID, err)
	}

	return nil
}

// ByLead returns all recorded communications for a lead.
func (r *CommunicationRepository) ByLead(ctx context.Context, leadID string) ([]*models.CommunicationRecord, error) {
	query := `
		SELECT id, execution_id, campaign_id, lead_id, template_id, channel, content, sent_at
		FROM communications
		WHERE lead_id = $1
		ORDER BY sent_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query communications: %w", err)
	}
	defer rows.Close()

	var records []*models.CommunicationRecord

	for rows.Next() {
		var (
			record  models.CommunicationRecord
			channel string
			content []byte
		)

		err := rows.Scan(
			&record.ID,
			&record.ExecutionID,
			&record.CampaignID,
			&record.LeadID,
			&record.TemplateID,
			&channel,
			&content,
			&record.SentAt,
		)
		if err != nil {
			return nil, err
		}

		record.Channel = models.Channel(channel)

		if err := json.Unmarshal(content, &record.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

// store.Store forwarding

func (s *Store) SaveCommunication(ctx context.Context, record *models.CommunicationRecord) error {
	return s.communicationRepo.Save(ctx, record)
}

func (s *Store) CommunicationsByLead(ctx context.Context, leadID string) ([]*models.CommunicationRecord, error) {
	return s.communicationRepo.ByLead(ctx, leadID)
}
