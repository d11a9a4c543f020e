// Package models defines the core domain models for campaign execution.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusScheduled ExecutionStatus = "scheduled" // Waiting for its scheduled time
	ExecutionStatusExecuting ExecutionStatus = "executing" // Claimed by a processor
	ExecutionStatusCompleted ExecutionStatus = "completed" // Message sent successfully
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Last attempt failed (may be retried)
)

// CancelledByUserMessage is stored on executions cancelled through the API
// instead of deleting them, preserving the audit trail.
const CancelledByUserMessage = "Cancelled by user"

// Execution is one scheduled attempt to deliver a single template to a
// single lead for a single campaign. It is the central entity of the
// execution engine: the scheduler creates it, the monitor claims it when
// due, and the processor drives it to a terminal state.
type Execution struct {
	// ID uniquely identifies this execution, generated at creation
	ID string `json:"id" validate:"required"`

	// CampaignID, LeadID and TemplateID reference external entities and
	// are immutable after creation
	CampaignID string `json:"campaign_id" validate:"required"`
	LeadID     string `json:"lead_id"     validate:"required"`
	TemplateID string `json:"template_id" validate:"required"`

	// SequenceID groups the executions created by a single
	// ScheduleSequence call; empty for one-off executions
	SequenceID string `json:"sequence_id,omitempty"`

	// StepIndex is the zero-based position within the sequence
	StepIndex int `json:"step_index"`

	// Channel is the transport used for the send
	Channel Channel `json:"channel" validate:"required"`

	// ScheduledFor is the time at or after which this execution becomes
	// eligible for processing. Mutated only by the scheduler and by
	// retry rescheduling.
	ScheduledFor time.Time `json:"scheduled_for"`

	Status ExecutionStatus `json:"status"`

	// Attempts counts processing attempts, incremented once per claim
	Attempts int `json:"attempts"`

	// LastAttempt is the timestamp of the most recent attempt
	LastAttempt *time.Time `json:"last_attempt,omitempty"`

	// ErrorMessage holds the last failure reason; kept across retries
	// for audit
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecution creates a scheduled execution with a generated ID.
func NewExecution(campaignID, leadID, templateID string, channel Channel, scheduledFor time.Time) *Execution {
	now := time.Now().UTC()

	return &Execution{
		ID:           uuid.New().String(),
		CampaignID:   campaignID,
		LeadID:       leadID,
		TemplateID:   templateID,
		Channel:      channel,
		ScheduledFor: scheduledFor.UTC(),
		Status:       ExecutionStatusScheduled,
		Attempts:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate performs validation on the execution fields.
func (e *Execution) Validate() error {
	if e.ID == "" || e.CampaignID == "" || e.LeadID == "" || e.TemplateID == "" {
		return ErrInvalidExecution
	}

	switch e.Status {
	case ExecutionStatusScheduled, ExecutionStatusExecuting, ExecutionStatusCompleted, ExecutionStatusFailed:
	default:
		return ErrInvalidExecution
	}

	return e.Channel.Validate()
}

// IsDue checks if this execution is eligible for processing at the given time.
func (e *Execution) IsDue(now time.Time) bool {
	return e.Status == ExecutionStatusScheduled && !e.ScheduledFor.After(now)
}

// IsTerminal reports whether the execution can no longer change state
// (completed, or failed with no retry pending).
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}

var (
	// ErrInvalidExecution is returned when execution validation fails
	ErrInvalidExecution = errors.New("invalid execution")
)
