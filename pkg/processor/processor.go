// Package processor executes one due execution end-to-end: render, send,
// record, and mark the outcome.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hyperreach/cadence/pkg/eventbus"
	"github.com/hyperreach/cadence/pkg/events"
	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/otelhelper"
	"github.com/hyperreach/cadence/pkg/retry"
	"github.com/hyperreach/cadence/pkg/scheduler"
	"github.com/hyperreach/cadence/pkg/store"
)

// DefaultCallTimeout bounds each external render and send call. A hung
// collaborator becomes a hard failure feeding the retry policy instead of
// stalling an execution slot indefinitely.
const DefaultCallTimeout = 30 * time.Second

// Renderer resolves a template for a lead into sendable content. A missing
// template, missing lead or rendering error is a hard failure for the
// attempt, indistinguishable from a transport failure.
type Renderer interface {
	Render(ctx context.Context, templateID, leadID string) (*models.RenderedContent, error)
}

// Sender delivers rendered content to a lead over a channel.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, leadID string, content *models.RenderedContent) (*models.DeliveryReceipt, error)
}

// Recorder persists the communication history entry after a successful send.
// Recording is best-effort: sends are not transactional with recording.
type Recorder interface {
	RecordCommunication(ctx context.Context, record *models.CommunicationRecord) error
}

// Processor drives a claimed execution to completion or failure. Errors are
// absorbed at this boundary and converted into execution state plus a retry
// decision; they never propagate to the monitor loop.
type Processor struct {
	store       store.Store
	policy      *retry.Policy
	scheduler   *scheduler.Scheduler
	renderer    Renderer
	sender      Sender
	recorder    Recorder
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewProcessor creates a Processor. A nil tracer disables tracing and a nil
// eventBus disables event publishing; recorder may be nil when communication
// history is handled elsewhere.
func NewProcessor(
	st store.Store,
	policy *retry.Policy,
	sched *scheduler.Scheduler,
	renderer Renderer,
	sender Sender,
	recorder Recorder,
	eventBus eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Processor {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("processor")
	}

	return &Processor{
		store:       st,
		policy:      policy,
		scheduler:   sched,
		renderer:    renderer,
		sender:      sender,
		recorder:    recorder,
		eventBus:    eventBus,
		tracer:      tracer,
		logger:      logger.With("module", "processor"),
		callTimeout: DefaultCallTimeout,
	}
}

// SetCallTimeout overrides the per-call timeout for render and send.
func (p *Processor) SetCallTimeout(timeout time.Duration) {
	if timeout > 0 {
		p.callTimeout = timeout
	}
}

// Process claims and executes one execution. The claim is atomic
// (scheduled -> executing) so overlapping ticks or manual force-process
// calls cannot double-run the same record; a failed claim returns
// store.ErrExecutionNotClaimable.
func (p *Processor) Process(ctx context.Context, id string) error {
	started := time.Now()

	execution, err := p.store.ClaimExecution(ctx, id, started)
	if err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "processor.process",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.CampaignIDKey, execution.CampaignID),
		attribute.String(otelhelper.LeadIDKey, execution.LeadID),
		attribute.String(otelhelper.TemplateIDKey, execution.TemplateID),
		attribute.String(otelhelper.ChannelKey, string(execution.Channel)),
	)
	defer span.End()

	logger := p.logger.With(
		"execution_id", execution.ID,
		"campaign_id", execution.CampaignID,
		"lead_id", execution.LeadID,
		"template_id", execution.TemplateID,
		"attempt", execution.Attempts,
	)

	logger.InfoContext(ctx, "Processing execution")

	content, err := p.render(ctx, execution)
	if err != nil {
		otelhelper.RecordError(span, err)

		return p.fail(ctx, logger, execution, fmt.Errorf("render failed: %w", err))
	}

	receipt, err := p.send(ctx, execution, content)
	if err != nil {
		otelhelper.RecordError(span, err)

		return p.fail(ctx, logger, execution, fmt.Errorf("send failed: %w", err))
	}

	// A recording failure does not roll back a successfully sent message:
	// "message was sent" truth wins over bookkeeping completeness.
	p.record(ctx, logger, execution, content, receipt)

	execution.Status = models.ExecutionStatusCompleted
	execution.ErrorMessage = ""
	execution.UpdatedAt = time.Now().UTC()

	if err := p.store.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to save completed execution: %w", err)
	}

	logger.InfoContext(ctx, "Execution completed", "duration", time.Since(started))

	p.publish(ctx, execution.CampaignID, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.CampaignID, execution.LeadID),
		ExecutionID: execution.ID,
		TemplateID:  execution.TemplateID,
		Attempts:    execution.Attempts,
		Duration:    time.Since(started),
	})

	return nil
}

// ProcessBatch runs each execution independently and concurrently: one slow
// or failing execution never blocks or aborts the others. Results land in
// the store; callers query it afterward.
func (p *Processor) ProcessBatch(ctx context.Context, executions []*models.Execution) {
	var wg sync.WaitGroup

	for _, execution := range executions {
		wg.Add(1)

		go func(id string) {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					p.logger.ErrorContext(ctx, "Panic while processing execution",
						"execution_id", id,
						"panic", r)
				}
			}()

			err := p.Process(ctx, id)
			if err != nil && !store.IsExecutionNotClaimable(err) {
				p.logger.ErrorContext(ctx, "Failed to process execution",
					"execution_id", id,
					"error", err)
			}
		}(execution.ID)
	}

	wg.Wait()
}

func (p *Processor) render(ctx context.Context, execution *models.Execution) (*models.RenderedContent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	return p.renderer.Render(ctx, execution.TemplateID, execution.LeadID)
}

func (p *Processor) send(ctx context.Context, execution *models.Execution, content *models.RenderedContent) (*models.DeliveryReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	return p.sender.Send(ctx, execution.Channel, execution.LeadID, content)
}

func (p *Processor) record(ctx context.Context, logger *slog.Logger, execution *models.Execution, content *models.RenderedContent, receipt *models.DeliveryReceipt) {
	if p.recorder == nil {
		return
	}

	sentAt := time.Now().UTC()
	if receipt != nil && !receipt.SentAt.IsZero() {
		sentAt = receipt.SentAt
	}

	record := &models.CommunicationRecord{
		ExecutionID: execution.ID,
		CampaignID:  execution.CampaignID,
		LeadID:      execution.LeadID,
		TemplateID:  execution.TemplateID,
		Channel:     execution.Channel,
		Content:     *content,
		SentAt:      sentAt,
	}

	if err := p.recorder.RecordCommunication(ctx, record); err != nil {
		logger.WarnContext(ctx, "Failed to record communication", "error", err)
	}
}

// fail marks the attempt failed and escalates to the retry policy, which
// either puts the execution back into the scheduled state or leaves it
// permanently failed.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, execution *models.Execution, cause error) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = cause.Error()
	execution.UpdatedAt = now

	if err := p.store.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to save failed execution: %w", err)
	}

	logger.WarnContext(ctx, "Execution attempt failed", "error", cause)

	retried, err := p.policy.ScheduleRetry(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	if retried {
		p.publish(ctx, execution.CampaignID, events.ExecutionRetryScheduled{
			BaseEvent:    events.NewBaseEvent(events.ExecutionRetryScheduledEvent, execution.CampaignID, execution.LeadID),
			ExecutionID:  execution.ID,
			Attempts:     execution.Attempts,
			ScheduledFor: execution.ScheduledFor,
		})

		return nil
	}

	p.publish(ctx, execution.CampaignID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.CampaignID, execution.LeadID),
		ExecutionID: execution.ID,
		TemplateID:  execution.TemplateID,
		Attempts:    execution.Attempts,
		Error:       execution.ErrorMessage,
		Permanent:   true,
	})

	if p.scheduler != nil && p.scheduler.Config().SuppressAfterFailure && execution.SequenceID != "" {
		cancelled, err := p.scheduler.CancelSequenceTail(ctx, execution.SequenceID, execution.StepIndex)
		if err != nil {
			logger.WarnContext(ctx, "Failed to suppress sequence tail", "error", err)
		} else if cancelled > 0 {
			logger.InfoContext(ctx, "Suppressed remaining sequence steps",
				"sequence_id", execution.SequenceID,
				"cancelled", cancelled)
		}
	}

	return nil
}

func (p *Processor) publish(ctx context.Context, key string, event eventbus.Event) {
	if p.eventBus == nil {
		return
	}

	if err := p.eventBus.Publish(ctx, key, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}
