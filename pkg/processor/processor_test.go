package processor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/retry"
	"github.com/hyperreach/cadence/pkg/scheduler"
	"github.com/hyperreach/cadence/pkg/store"
	"github.com/hyperreach/cadence/pkg/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

type stubRenderer struct {
	err error
}

func (r *stubRenderer) Render(_ context.Context, templateID, _ string) (*models.RenderedContent, error) {
	if r.err != nil {
		return nil, r.err
	}

	return &models.RenderedContent{Subject: "Hello", Text: "body of " + templateID}, nil
}

// flakySender fails the first failures calls, then succeeds.
type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakySender) Send(_ context.Context, _ models.Channel, _ string, _ *models.RenderedContent) (*models.DeliveryReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("gateway unavailable")
	}

	return &models.DeliveryReceipt{ProviderID: "prov-1", SentAt: time.Now().UTC()}, nil
}

type failingRecorder struct{}

func (failingRecorder) RecordCommunication(_ context.Context, _ *models.CommunicationRecord) error {
	return errors.New("audit db down")
}

type panickingSender struct{}

func (panickingSender) Send(_ context.Context, _ models.Channel, _ string, _ *models.RenderedContent) (*models.DeliveryReceipt, error) {
	panic("boom")
}

type testEngine struct {
	store     *memory.Store
	policy    *retry.Policy
	scheduler *scheduler.Scheduler
	sender    *flakySender
	processor *Processor
}

func newTestEngine(t *testing.T, schedConfig scheduler.Config, senderFailures int) *testEngine {
	t.Helper()

	st := memory.NewStore()
	logger := testLogger()
	policy := retry.NewPolicy(st, logger)
	sched := scheduler.NewScheduler(schedConfig, st, nil, logger)
	sender := &flakySender{failures: senderFailures}

	proc := NewProcessor(st, policy, sched, &stubRenderer{}, sender, nil, nil, nil, logger)

	return &testEngine{
		store:     st,
		policy:    policy,
		scheduler: sched,
		sender:    sender,
		processor: proc,
	}
}

// retryNow collapses the pending retry delay so the execution is claimable
// again immediately.
func retryNow(t *testing.T, st *memory.Store, id string) {
	t.Helper()

	ctx := context.Background()

	execution, err := st.ExecutionByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusScheduled, execution.Status)

	execution.ScheduledFor = time.Now().UTC().Add(-time.Second)
	require.NoError(t, st.SaveExecution(ctx, execution))
}

func TestProcessor_Process_Success(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{}, 0)

	id, err := engine.scheduler.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, engine.processor.Process(ctx, id))

	execution, err := engine.store.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 1, execution.Attempts)
	assert.Empty(t, execution.ErrorMessage)
	require.NotNil(t, execution.LastAttempt)
}

func TestProcessor_Process_FailTwiceThenSucceed(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{}, 2)

	id, err := engine.scheduler.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	// First two passes fail and schedule a retry.
	for pass := 0; pass < 2; pass++ {
		require.NoError(t, engine.processor.Process(ctx, id))

		execution, err := engine.store.ExecutionByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusScheduled, execution.Status)
		assert.Equal(t, pass+1, execution.Attempts)
		assert.Contains(t, execution.ErrorMessage, "send failed")
		assert.True(t, execution.ScheduledFor.After(time.Now()))

		retryNow(t, engine.store, id)
	}

	require.NoError(t, engine.processor.Process(ctx, id))

	execution, err := engine.store.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 3, execution.Attempts)
}

func TestProcessor_Process_ExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{}, 100)

	id, err := engine.scheduler.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	for pass := 0; pass < 3; pass++ {
		require.NoError(t, engine.processor.Process(ctx, id))

		execution, err := engine.store.ExecutionByID(ctx, id)
		require.NoError(t, err)

		if pass < 2 {
			require.Equal(t, models.ExecutionStatusScheduled, execution.Status)
			retryNow(t, engine.store, id)
		}
	}

	execution, err := engine.store.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 3, execution.Attempts)
	assert.Contains(t, execution.ErrorMessage, "send failed")

	// Permanently failed records never become due again.
	due, err := engine.store.DueExecutions(ctx, time.Now().Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestProcessor_Process_RenderFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	logger := testLogger()
	policy := retry.NewPolicy(st, logger)
	sched := scheduler.NewScheduler(scheduler.Config{}, st, nil, logger)

	proc := NewProcessor(st, policy, sched, &stubRenderer{err: errors.New("template missing")}, &flakySender{}, nil, nil, nil, logger)

	id, err := sched.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, proc.Process(ctx, id))

	execution, err := st.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "render failed")
}

func TestProcessor_Process_NotClaimable(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{}, 0)

	id, err := engine.scheduler.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = engine.store.ClaimExecution(ctx, id, time.Now())
	require.NoError(t, err)

	err = engine.processor.Process(ctx, id)
	assert.True(t, store.IsExecutionNotClaimable(err))

	err = engine.processor.Process(ctx, "missing")
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestProcessor_Process_RecorderFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	logger := testLogger()
	policy := retry.NewPolicy(st, logger)
	sched := scheduler.NewScheduler(scheduler.Config{}, st, nil, logger)

	proc := NewProcessor(st, policy, sched, &stubRenderer{}, &flakySender{}, failingRecorder{}, nil, nil, logger)

	id, err := sched.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, proc.Process(ctx, id))

	execution, err := st.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestProcessor_Process_RecordsCommunication(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	logger := testLogger()
	policy := retry.NewPolicy(st, logger)
	sched := scheduler.NewScheduler(scheduler.Config{}, st, nil, logger)

	recorder := &storeRecorder{store: st}
	proc := NewProcessor(st, policy, sched, &stubRenderer{}, &flakySender{}, recorder, nil, nil, logger)

	id, err := sched.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, proc.Process(ctx, id))

	records, err := st.CommunicationsByLead(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ExecutionID)
	assert.Equal(t, "Hello", records[0].Content.Subject)
}

type storeRecorder struct {
	store *memory.Store
}

func (r *storeRecorder) RecordCommunication(ctx context.Context, record *models.CommunicationRecord) error {
	return r.store.SaveCommunication(ctx, record)
}

func TestProcessor_Process_SuppressesSequenceTail(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{SuppressAfterFailure: true}, 100)
	engine.policy.MaxAttempts = 1

	ids, err := engine.scheduler.ScheduleSequence(ctx, "campaign-1", "lead-1", []string{"t1", "t2", "t3"}, models.ChannelEmail)
	require.NoError(t, err)

	// Make the first step due and fail it permanently.
	retryNow(t, engine.store, ids[0])
	require.NoError(t, engine.processor.Process(ctx, ids[0]))

	first, err := engine.store.ExecutionByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, first.Status)

	for _, id := range ids[1:] {
		execution, err := engine.store.ExecutionByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
		assert.Equal(t, models.CancelledByUserMessage, execution.ErrorMessage)
	}
}

func TestProcessor_Process_SequenceTailSurvivesByDefault(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{}, 100)
	engine.policy.MaxAttempts = 1

	ids, err := engine.scheduler.ScheduleSequence(ctx, "campaign-1", "lead-1", []string{"t1", "t2"}, models.ChannelEmail)
	require.NoError(t, err)

	retryNow(t, engine.store, ids[0])
	require.NoError(t, engine.processor.Process(ctx, ids[0]))

	second, err := engine.store.ExecutionByID(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, second.Status)
}

func TestProcessor_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, scheduler.Config{}, 0)

	var executions []*models.Execution

	for i := 0; i < 5; i++ {
		id, err := engine.scheduler.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
		require.NoError(t, err)

		execution, err := engine.store.ExecutionByID(ctx, id)
		require.NoError(t, err)

		executions = append(executions, execution)
	}

	engine.processor.ProcessBatch(ctx, executions)

	counts, err := engine.store.CountByStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, counts[models.ExecutionStatusCompleted])
}

func TestProcessor_ProcessBatch_SurvivesPanic(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	logger := testLogger()
	policy := retry.NewPolicy(st, logger)
	sched := scheduler.NewScheduler(scheduler.Config{}, st, nil, logger)

	proc := NewProcessor(st, policy, sched, &stubRenderer{}, panickingSender{}, nil, nil, nil, logger)

	id, err := sched.ScheduleOne(ctx, "campaign-1", "lead-1", "template-1", models.ChannelEmail, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	execution, err := st.ExecutionByID(ctx, id)
	require.NoError(t, err)

	// Must return despite the panic inside the worker goroutine.
	proc.ProcessBatch(ctx, []*models.Execution{execution})

	stored, err := st.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuting, stored.Status)
}
