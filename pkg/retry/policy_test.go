package retry

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestNewPolicy_Defaults(t *testing.T) {
	policy := NewPolicy(memory.NewStore(), testLogger())

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 5*time.Minute, policy.BaseDelay)
	assert.InDelta(t, 1.5, policy.BackoffMultiplier, 0.0001)
	assert.Zero(t, policy.Jitter)
}

func TestPolicy_ShouldRetry(t *testing.T) {
	policy := NewPolicy(memory.NewStore(), testLogger())

	execution := models.NewExecution("campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now())

	execution.Attempts = 0
	assert.True(t, policy.ShouldRetry(execution))

	execution.Attempts = 2
	assert.True(t, policy.ShouldRetry(execution))

	execution.Attempts = 3
	assert.False(t, policy.ShouldRetry(execution))

	execution.Attempts = 4
	assert.False(t, policy.ShouldRetry(execution))
}

func TestPolicy_NextDelay(t *testing.T) {
	policy := NewPolicy(memory.NewStore(), testLogger())

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 7*time.Minute + 30*time.Second},
		{2, 11*time.Minute + 15*time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.NextDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestPolicy_NextDelay_Monotonic(t *testing.T) {
	policy := NewPolicy(memory.NewStore(), testLogger())

	previous := time.Duration(0)
	for attempts := 0; attempts < 8; attempts++ {
		delay := policy.NextDelay(attempts)
		assert.Greater(t, delay, previous, "attempts=%d", attempts)
		previous = delay
	}
}

func TestPolicy_NextDelay_Jitter(t *testing.T) {
	policy := NewPolicy(memory.NewStore(), testLogger())
	policy.Jitter = 0.2

	base := 5 * time.Minute
	low := time.Duration(float64(base) * 0.8).Truncate(time.Second)
	high := time.Duration(float64(base) * 1.2)

	for i := 0; i < 100; i++ {
		delay := policy.NextDelay(0)
		assert.GreaterOrEqual(t, delay, low)
		assert.LessOrEqual(t, delay, high)
	}
}

func TestPolicy_ScheduleRetry(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	policy := NewPolicy(st, testLogger())

	execution := models.NewExecution("campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now())
	execution.Status = models.ExecutionStatusFailed
	execution.Attempts = 1
	execution.ErrorMessage = "smtp timeout"
	require.NoError(t, st.SaveExecution(ctx, execution))

	before := time.Now().UTC()

	retried, err := policy.ScheduleRetry(ctx, execution)
	require.NoError(t, err)
	assert.True(t, retried)

	stored, err := st.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "smtp timeout", stored.ErrorMessage)

	// Scheduled about one backoff step out.
	expected := before.Add(policy.NextDelay(1))
	assert.WithinDuration(t, expected, stored.ScheduledFor, 5*time.Second)
}

func TestPolicy_ScheduleRetry_Exhausted(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	policy := NewPolicy(st, testLogger())

	execution := models.NewExecution("campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now())
	execution.Status = models.ExecutionStatusFailed
	execution.Attempts = 3
	require.NoError(t, st.SaveExecution(ctx, execution))

	retried, err := policy.ScheduleRetry(ctx, execution)
	require.NoError(t, err)
	assert.False(t, retried)

	stored, err := st.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
}
