// Package monitor drives the scheduling loop: on a fixed tick it pulls a
// bounded batch of due executions from the store and hands them to the
// processor. It also exposes the health, statistics and reporting queries.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/processor"
	"github.com/hyperreach/cadence/pkg/store"
)

const (
	// DefaultTickInterval is the spacing between processing passes.
	DefaultTickInterval = 60 * time.Second

	// DefaultBatchSize caps per-tick work. Under sustained overload this
	// throttles throughput deterministically instead of growing
	// concurrent work without bound.
	DefaultBatchSize = 10

	reportTopN = 10
)

// Enroller re-enrolls the leads of a due recurrence. Implemented by
// assignment.Assigner; kept as an interface so the monitor does not depend
// on the assignment package.
type Enroller interface {
	EnrollRecurring(ctx context.Context, recurrence *models.Recurrence) error
}

// Monitor runs the centralized processing loop. State machine:
// stopped -> running -> stopped.
type Monitor struct {
	tickInterval time.Duration
	batchSize    int

	store     store.Store
	processor *processor.Processor
	enroller  Enroller
	logger    *slog.Logger

	ticker  *time.Ticker
	done    chan bool
	started bool
	mu      sync.RWMutex
}

// NewMonitor creates a Monitor. A nil enroller disables recurrence
// processing.
func NewMonitor(st store.Store, proc *processor.Processor, enroller Enroller, logger *slog.Logger) *Monitor {
	return &Monitor{
		tickInterval: DefaultTickInterval,
		batchSize:    DefaultBatchSize,
		store:        st,
		processor:    proc,
		enroller:     enroller,
		logger:       logger.With("module", "monitor"),
	}
}

// SetTickInterval overrides the tick interval. Must be called before Start.
func (m *Monitor) SetTickInterval(interval time.Duration) {
	if interval > 0 {
		m.tickInterval = interval
	}
}

// SetBatchSize overrides the per-tick batch cap. Must be called before Start.
func (m *Monitor) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// Start begins the processing loop. Idempotent: a no-op when already
// running. One immediate pass runs before the first tick so already-due
// work is not left waiting.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()

	if m.started {
		m.mu.Unlock()

		return
	}

	m.logger.InfoContext(ctx, "Starting execution monitor",
		"tick_interval", m.tickInterval,
		"batch_size", m.batchSize)

	m.ticker = time.NewTicker(m.tickInterval)
	m.done = make(chan bool)
	m.started = true
	m.mu.Unlock()

	m.tick(ctx)

	go m.run(ctx)
}

// Stop cancels the tick loop. In-flight batches are not aborted; only the
// next tick is prevented.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	m.logger.InfoContext(ctx, "Stopping execution monitor")

	if m.ticker != nil {
		m.ticker.Stop()
	}

	select {
	case m.done <- true:
	default:
	}

	m.started = false
}

// IsRunning reports whether the loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.started
}

func (m *Monitor) run(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-m.ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one processing pass. A pass never crashes the loop: store
// errors are logged and the next tick retries.
func (m *Monitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "Panic in processing pass", "panic", r)
		}
	}()

	now := time.Now().UTC()

	m.processDueRecurrences(ctx, now)

	due, err := m.store.DueExecutions(ctx, now, m.batchSize)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to query due executions", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	m.logger.InfoContext(ctx, "Processing due executions", "count", len(due))

	m.processor.ProcessBatch(ctx, due)
}

func (m *Monitor) processDueRecurrences(ctx context.Context, now time.Time) {
	if m.enroller == nil {
		return
	}

	recurrences, err := m.store.DueRecurrences(ctx, now)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to query due recurrences", "error", err)

		return
	}

	for _, recurrence := range recurrences {
		logger := m.logger.With(
			"recurrence_id", recurrence.ID,
			"campaign_id", recurrence.CampaignID)

		if err := m.enroller.EnrollRecurring(ctx, recurrence); err != nil {
			logger.ErrorContext(ctx, "Failed to enroll recurrence", "error", err)

			continue
		}

		if err := recurrence.UpdateNextDueAt(); err != nil {
			logger.ErrorContext(ctx, "Failed to update next due at", "error", err)

			continue
		}

		if err := m.store.SaveRecurrence(ctx, recurrence); err != nil {
			logger.ErrorContext(ctx, "Failed to save recurrence", "error", err)

			continue
		}

		logger.InfoContext(ctx, "Recurrence enrolled", "next_due_at", recurrence.NextDueAt)
	}
}

// ForceProcess runs the processor on one execution outside the tick cycle.
// Returns true only if the record was currently scheduled; the claim path
// keeps it safe against a concurrent tick picking up the same record.
func (m *Monitor) ForceProcess(ctx context.Context, id string) (bool, error) {
	execution, err := m.store.ExecutionByID(ctx, id)
	if err != nil {
		if store.IsExecutionNotFound(err) {
			return false, nil
		}

		return false, err
	}

	if execution.Status != models.ExecutionStatusScheduled {
		return false, nil
	}

	err = m.processor.Process(ctx, id)
	if err != nil {
		if store.IsExecutionNotClaimable(err) {
			// Lost the race against a tick; the record is being handled.
			return false, nil
		}

		return false, err
	}

	return true, nil
}
