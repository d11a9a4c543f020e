// Package retry encapsulates the decision of whether and when a failed
// execution is retried.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = 5 * time.Minute
	DefaultBackoffMultiplier = 1.5
)

// Policy computes retry eligibility and the exponential backoff delay. The
// zero Jitter value reproduces a deterministic schedule; any positive value
// spreads simultaneous retries to avoid synchronized retry storms after a
// transient transport outage.
type Policy struct {
	// MaxAttempts is the total number of processing attempts allowed
	MaxAttempts int

	// BaseDelay anchors the backoff curve: the delay is
	// BaseDelay * BackoffMultiplier^attempts
	BaseDelay time.Duration

	// BackoffMultiplier scales the delay per additional attempt
	BackoffMultiplier float64

	// Jitter is the fraction (0..1) of the delay randomized in both
	// directions; 0 disables jitter
	Jitter float64

	executions store.ExecutionStore
	logger     *slog.Logger
}

// NewPolicy creates a Policy with the default configuration.
func NewPolicy(executions store.ExecutionStore, logger *slog.Logger) *Policy {
	return &Policy{
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		executions:        executions,
		logger:            logger.With("module", "retry_policy"),
	}
}

// ShouldRetry reports whether the execution has attempts remaining.
func (p *Policy) ShouldRetry(execution *models.Execution) bool {
	return execution.Attempts < p.MaxAttempts
}

// NextDelay returns baseDelay * multiplier^attempts, truncated to whole
// seconds, with optional jitter applied. The delay grows strictly with the
// attempt count for any multiplier above 1.
func (p *Policy) NextDelay(attempts int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempts))

	if p.Jitter > 0 {
		// Uniform in [1-jitter, 1+jitter)
		delay *= 1 + p.Jitter*(2*rand.Float64()-1)
	}

	return time.Duration(delay).Truncate(time.Second)
}

// ScheduleRetry puts a failed execution back into the scheduled state with a
// future scheduledFor, leaving Attempts and ErrorMessage intact for audit.
// It is a no-op returning false once attempts are exhausted: the execution
// then stays permanently failed.
func (p *Policy) ScheduleRetry(ctx context.Context, execution *models.Execution) (bool, error) {
	if !p.ShouldRetry(execution) {
		p.logger.InfoContext(ctx, "Retries exhausted, execution stays failed",
			"execution_id", execution.ID,
			"attempts", execution.Attempts)

		return false, nil
	}

	delay := p.NextDelay(execution.Attempts)
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusScheduled
	execution.ScheduledFor = now.Add(delay)
	execution.UpdatedAt = now

	if err := p.executions.SaveExecution(ctx, execution); err != nil {
		return false, err
	}

	p.logger.InfoContext(ctx, "Retry scheduled",
		"execution_id", execution.ID,
		"attempts", execution.Attempts,
		"delay", delay,
		"scheduled_for", execution.ScheduledFor)

	return true, nil
}
