// Package assignment resolves a campaign's template sequence for a set of
// leads and hands it to the scheduler. It is the primary caller of the
// execution engine, not part of its hard core.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/scheduler"
	"github.com/hyperreach/cadence/pkg/store"
)

// TemplateRef is one step of a campaign's sequence.
type TemplateRef struct {
	TemplateID string         `json:"template_id"`
	Channel    models.Channel `json:"channel"`
}

// SequenceResolver supplies the ordered template sequence configured for a
// campaign. Implemented by the campaign CRUD layer.
type SequenceResolver interface {
	ResolveSequence(ctx context.Context, campaignID string) ([]TemplateRef, error)
}

// Assigner enrolls leads into campaigns by scheduling the campaign's
// sequence per lead.
type Assigner struct {
	resolver  SequenceResolver
	scheduler *scheduler.Scheduler
	store     store.RecurrenceStore
	logger    *slog.Logger
}

func NewAssigner(resolver SequenceResolver, sched *scheduler.Scheduler, recurrences store.RecurrenceStore, logger *slog.Logger) *Assigner {
	return &Assigner{
		resolver:  resolver,
		scheduler: sched,
		store:     recurrences,
		logger:    logger.With("module", "assignment"),
	}
}

// EnrollResult summarizes one enrollment batch.
type EnrollResult struct {
	CampaignID   string              `json:"campaign_id"`
	ExecutionIDs map[string][]string `json:"execution_ids"` // lead -> executions
	Failed       map[string]string   `json:"failed,omitempty"`
}

// Enroll resolves the campaign's sequence once and schedules it for every
// lead. Per-lead failures are collected; one bad lead never aborts the
// batch.
func (a *Assigner) Enroll(ctx context.Context, campaignID string, leadIDs []string) (*EnrollResult, error) {
	if len(leadIDs) == 0 {
		return nil, ErrNoLeads
	}

	refs, err := a.resolver.ResolveSequence(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sequence for campaign %s: %w", campaignID, err)
	}

	if len(refs) == 0 {
		return nil, ErrEmptySequence
	}

	templateIDs := make([]string, len(refs))
	for i, ref := range refs {
		templateIDs[i] = ref.TemplateID
	}

	// Sequences are single-channel today; the first step's channel wins.
	channel := refs[0].Channel

	result := &EnrollResult{
		CampaignID:   campaignID,
		ExecutionIDs: make(map[string][]string, len(leadIDs)),
		Failed:       make(map[string]string),
	}

	for _, leadID := range leadIDs {
		ids, err := a.scheduler.ScheduleSequence(ctx, campaignID, leadID, templateIDs, channel)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to schedule sequence for lead",
				"campaign_id", campaignID,
				"lead_id", leadID,
				"error", err)

			result.Failed[leadID] = err.Error()

			continue
		}

		result.ExecutionIDs[leadID] = ids
	}

	a.logger.InfoContext(ctx, "Enrollment finished",
		"campaign_id", campaignID,
		"leads", len(leadIDs),
		"failed", len(result.Failed))

	return result, nil
}

// EnrollRecurring re-enrolls the leads of a due recurrence. Called by the
// monitor's tick when the recurrence fires.
func (a *Assigner) EnrollRecurring(ctx context.Context, recurrence *models.Recurrence) error {
	_, err := a.Enroll(ctx, recurrence.CampaignID, recurrence.LeadIDs)

	return err
}

// CreateRecurrence validates and stores a recurring enrollment.
func (a *Assigner) CreateRecurrence(ctx context.Context, campaignID string, leadIDs []string, cronExpression string) (*models.Recurrence, error) {
	recurrence, err := models.NewRecurrence(uuid.New().String(), campaignID, leadIDs, cronExpression)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence: %w", err)
	}

	if err := a.store.SaveRecurrence(ctx, recurrence); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Recurrence created",
		"recurrence_id", recurrence.ID,
		"campaign_id", campaignID,
		"cron", cronExpression,
		"next_due_at", recurrence.NextDueAt)

	return recurrence, nil
}

// DeleteRecurrence removes a recurring enrollment.
func (a *Assigner) DeleteRecurrence(ctx context.Context, id string) (bool, error) {
	return a.store.DeleteRecurrence(ctx, id)
}

var (
	// ErrNoLeads is returned when an enrollment has no leads
	ErrNoLeads = errors.New("no leads to enroll")

	// ErrEmptySequence is returned when a campaign has no templates configured
	ErrEmptySequence = errors.New("campaign sequence is empty")
)
