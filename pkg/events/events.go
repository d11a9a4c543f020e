// Package events defines event types and structures for execution lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/hyperreach/cadence/pkg/models"
)

type EventType string

// Kafka topic for execution lifecycle events.
const Topic = "cadence.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionScheduledEvent      EventType = "execution.scheduled"
	ExecutionCompletedEvent      EventType = "execution.completed"
	ExecutionFailedEvent         EventType = "execution.failed"
	ExecutionRetryScheduledEvent EventType = "execution.retry.scheduled"
	ExecutionCancelledEvent      EventType = "execution.cancelled"
	SequenceScheduledEvent       EventType = "sequence.scheduled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	CampaignID string         `json:"campaign_id"`
	LeadID     string         `json:"lead_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the common envelope for an execution event.
func NewBaseEvent(eventType EventType, campaignID, leadID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		CampaignID: campaignID,
		LeadID:     leadID,
	}
}

type ExecutionScheduled struct {
	BaseEvent

	ExecutionID  string         `json:"execution_id"`
	TemplateID   string         `json:"template_id"`
	Channel      models.Channel `json:"channel"`
	ScheduledFor time.Time      `json:"scheduled_for"`
}

func (e ExecutionScheduled) GetType() EventType {
	return ExecutionScheduledEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	TemplateID  string        `json:"template_id"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TemplateID  string `json:"template_id"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error"`

	// Permanent is true once retries are exhausted
	Permanent bool `json:"permanent"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionRetryScheduled struct {
	BaseEvent

	ExecutionID  string    `json:"execution_id"`
	Attempts     int       `json:"attempts"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (e ExecutionRetryScheduled) GetType() EventType {
	return ExecutionRetryScheduledEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type SequenceScheduled struct {
	BaseEvent

	SequenceID   string   `json:"sequence_id"`
	ExecutionIDs []string `json:"execution_ids"`
	TemplateIDs  []string `json:"template_ids"`
}

func (e SequenceScheduled) GetType() EventType {
	return SequenceScheduledEvent
}
