// Package scheduler translates desired sends and send sequences into
// execution records.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hyperreach/cadence/pkg/eventbus"
	"github.com/hyperreach/cadence/pkg/events"
	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

// DefaultStepInterval is the spacing between consecutive sequence steps.
const DefaultStepInterval = 24 * time.Hour

// Config tunes sequence scheduling behavior.
type Config struct {
	// StepInterval is the delay between consecutive sequence steps
	StepInterval time.Duration

	// SuppressAfterFailure cancels the remaining scheduled steps of a
	// sequence once one of its steps fails permanently. Off by default:
	// sequences are time-driven, and a single failed send must not
	// stall the rest of the outreach.
	SuppressAfterFailure bool
}

// Scheduler creates, cancels and reschedules execution records. It owns the
// scheduling mechanism only; retry delay math belongs to retry.Policy.
type Scheduler struct {
	config   Config
	store    store.Store
	eventBus eventbus.EventPublisher
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. A nil eventBus disables event publishing.
func NewScheduler(config Config, st store.Store, eventBus eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	if config.StepInterval <= 0 {
		config.StepInterval = DefaultStepInterval
	}

	return &Scheduler{
		config:   config,
		store:    st,
		eventBus: eventBus,
		logger:   logger.With("module", "scheduler"),
	}
}

// Config returns the active scheduling configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

// ScheduleOne creates a single scheduled execution. Campaign and lead
// existence is the caller's responsibility; the engine fails fast upstream.
func (s *Scheduler) ScheduleOne(ctx context.Context, campaignID, leadID, templateID string, channel models.Channel, scheduledFor time.Time) (string, error) {
	execution := models.NewExecution(campaignID, leadID, templateID, channel, scheduledFor)

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return "", fmt.Errorf("failed to save execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution scheduled",
		"execution_id", execution.ID,
		"campaign_id", campaignID,
		"lead_id", leadID,
		"template_id", templateID,
		"scheduled_for", execution.ScheduledFor)

	s.publish(ctx, campaignID, events.ExecutionScheduled{
		BaseEvent:    events.NewBaseEvent(events.ExecutionScheduledEvent, campaignID, leadID),
		ExecutionID:  execution.ID,
		TemplateID:   templateID,
		Channel:      channel,
		ScheduledFor: execution.ScheduledFor,
	})

	return execution.ID, nil
}

// ScheduleSequence creates one execution per template for the lead, with
// scheduledFor increasing by the configured step interval from "now" for the
// first step. Step order is exactly the templateIDs order. Later steps are
// scheduled regardless of earlier-step outcomes: the sequence is time-driven,
// not completion-driven.
func (s *Scheduler) ScheduleSequence(ctx context.Context, campaignID, leadID string, templateIDs []string, channel models.Channel) ([]string, error) {
	if len(templateIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	sequenceID := uuid.New().String()
	ids := make([]string, 0, len(templateIDs))

	for i, templateID := range templateIDs {
		execution := models.NewExecution(campaignID, leadID, templateID, channel, now.Add(time.Duration(i)*s.config.StepInterval))
		execution.SequenceID = sequenceID
		execution.StepIndex = i

		if err := s.store.SaveExecution(ctx, execution); err != nil {
			return ids, fmt.Errorf("failed to save sequence step %d: %w", i, err)
		}

		ids = append(ids, execution.ID)
	}

	s.logger.InfoContext(ctx, "Sequence scheduled",
		"sequence_id", sequenceID,
		"campaign_id", campaignID,
		"lead_id", leadID,
		"steps", len(ids),
		"step_interval", s.config.StepInterval)

	s.publish(ctx, campaignID, events.SequenceScheduled{
		BaseEvent:    events.NewBaseEvent(events.SequenceScheduledEvent, campaignID, leadID),
		SequenceID:   sequenceID,
		ExecutionIDs: ids,
		TemplateIDs:  templateIDs,
	})

	return ids, nil
}

// CancelExecution cancels a single scheduled execution. Only scheduled
// records may be cancelled; the record flips to failed with a cancellation
// message rather than being deleted, preserving the audit trail. Returns
// false without mutation for any other status or a missing ID.
func (s *Scheduler) CancelExecution(ctx context.Context, id string) (bool, error) {
	execution, err := s.store.ExecutionByID(ctx, id)
	if err != nil {
		if store.IsExecutionNotFound(err) {
			return false, nil
		}

		return false, err
	}

	if execution.Status != models.ExecutionStatusScheduled {
		return false, nil
	}

	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = models.CancelledByUserMessage
	execution.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveExecution(ctx, execution); err != nil {
		return false, fmt.Errorf("failed to save cancelled execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution cancelled", "execution_id", id)

	s.publish(ctx, execution.CampaignID, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.CampaignID, execution.LeadID),
		ExecutionID: id,
	})

	return true, nil
}

// CancelExecutions bulk-cancels all scheduled executions matching the
// campaign or lead filter (OR semantics when both are given). Returns the
// number of cancelled records.
func (s *Scheduler) CancelExecutions(ctx context.Context, campaignID, leadID string) (int, error) {
	candidates := make(map[string]*models.Execution)

	if campaignID != "" {
		executions, err := s.store.ExecutionsByCampaign(ctx, campaignID)
		if err != nil {
			return 0, err
		}

		for _, execution := range executions {
			candidates[execution.ID] = execution
		}
	}

	if leadID != "" {
		executions, err := s.store.ExecutionsByLead(ctx, leadID)
		if err != nil {
			return 0, err
		}

		for _, execution := range executions {
			candidates[execution.ID] = execution
		}
	}

	cancelled := 0

	for id, execution := range candidates {
		if execution.Status != models.ExecutionStatusScheduled {
			continue
		}

		ok, err := s.CancelExecution(ctx, id)
		if err != nil {
			return cancelled, err
		}

		if ok {
			cancelled++
		}
	}

	s.logger.InfoContext(ctx, "Bulk cancel finished",
		"campaign_id", campaignID,
		"lead_id", leadID,
		"cancelled", cancelled)

	return cancelled, nil
}

// CancelSequenceTail cancels the scheduled steps of a sequence after the
// given step index. Used when SuppressAfterFailure is enabled and an earlier
// step has failed permanently.
func (s *Scheduler) CancelSequenceTail(ctx context.Context, sequenceID string, afterStep int) (int, error) {
	if sequenceID == "" {
		return 0, nil
	}

	executions, err := s.store.ExecutionsBySequence(ctx, sequenceID)
	if err != nil {
		return 0, err
	}

	cancelled := 0

	for _, execution := range executions {
		if execution.StepIndex <= afterStep || execution.Status != models.ExecutionStatusScheduled {
			continue
		}

		ok, err := s.CancelExecution(ctx, execution.ID)
		if err != nil {
			return cancelled, err
		}

		if ok {
			cancelled++
		}
	}

	return cancelled, nil
}

// ScheduleRetry re-stores an execution as scheduled after the given delay.
// This is a thin mechanism-only pass-through; the delay math belongs to
// retry.Policy.
func (s *Scheduler) ScheduleRetry(ctx context.Context, execution *models.Execution, delay time.Duration) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusScheduled
	execution.ScheduledFor = now.Add(delay)
	execution.UpdatedAt = now

	return s.store.SaveExecution(ctx, execution)
}

func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}
