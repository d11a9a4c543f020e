package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Recurrence represents a recurring campaign enrollment stored in the
// database. It contains the cron expression and precomputed next run time
// to enable efficient centralized polling without individual timers.
type Recurrence struct {
	// ID uniquely identifies this recurrence entry
	ID string `json:"id" validate:"required"`

	// CampaignID identifies the campaign whose sequence is re-scheduled
	CampaignID string `json:"campaign_id" validate:"required"`

	// LeadIDs are the leads enrolled on each run
	LeadIDs []string `json:"lead_ids" validate:"required,min=1"`

	// CronExpression defines when this recurrence fires
	// Uses standard 5-field cron format (minute hour day month weekday)
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is the precomputed next run time
	NextDueAt time.Time `json:"next_due_at"`

	// Active indicates if this recurrence is currently processed by the
	// monitor; inactive recurrences are skipped
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecurrence creates a Recurrence with the next run time calculated.
func NewRecurrence(id, campaignID string, leadIDs []string, cronExpression string) (*Recurrence, error) {
	now := time.Now().UTC()
	recurrence := &Recurrence{
		ID:             id,
		CampaignID:     campaignID,
		LeadIDs:        leadIDs,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := recurrence.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return recurrence, nil
}

// UpdateNextDueAt calculates and updates the next run time from now.
func (r *Recurrence) UpdateNextDueAt() error {
	return r.calculateNextDueAt(time.Now().UTC())
}

func (r *Recurrence) calculateNextDueAt(referenceTime time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(r.CronExpression)
	if err != nil {
		return err
	}

	r.NextDueAt = cronSchedule.Next(referenceTime)
	r.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue checks if this recurrence should run at the given time.
func (r *Recurrence) IsDue(now time.Time) bool {
	return r.Active && !r.NextDueAt.After(now)
}

// Validate performs validation on the recurrence fields.
func (r *Recurrence) Validate() error {
	if r.ID == "" || r.CampaignID == "" || len(r.LeadIDs) == 0 || r.CronExpression == "" {
		return ErrInvalidRecurrence
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(r.CronExpression)

	return err
}

var (
	// ErrInvalidRecurrence is returned when recurrence validation fails
	ErrInvalidRecurrence = errors.New("invalid recurrence configuration")
)
