package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

func newExecution(campaignID, leadID string, scheduledFor time.Time) *models.Execution {
	return models.NewExecution(campaignID, leadID, "template-1", models.ChannelEmail, scheduledFor)
}

func TestStore_SaveAndGetExecution(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	execution := newExecution("campaign-1", "lead-1", time.Now())
	require.NoError(t, st.SaveExecution(ctx, execution))

	found, err := st.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, found.ID)
	assert.Equal(t, models.ExecutionStatusScheduled, found.Status)

	// The store returns copies, mutating them must not leak back.
	found.Status = models.ExecutionStatusCompleted

	again, err := st.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, again.Status)
}

func TestStore_SaveExecution_Invalid(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	execution := newExecution("campaign-1", "lead-1", time.Now())
	execution.CampaignID = ""

	err := st.SaveExecution(ctx, execution)
	assert.ErrorIs(t, err, models.ErrInvalidExecution)
}

func TestStore_ExecutionByID_NotFound(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	_, err := st.ExecutionByID(ctx, "missing")
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestStore_DueExecutions_OrderAndBound(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	late := newExecution("campaign-1", "lead-late", now.Add(-time.Minute))
	early := newExecution("campaign-1", "lead-early", now.Add(-time.Hour))
	middle := newExecution("campaign-1", "lead-middle", now.Add(-30*time.Minute))
	future := newExecution("campaign-1", "lead-future", now.Add(time.Hour))

	for _, e := range []*models.Execution{late, early, middle, future} {
		require.NoError(t, st.SaveExecution(ctx, e))
	}

	due, err := st.DueExecutions(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, middle.ID, due[1].ID)

	due, err = st.DueExecutions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, late.ID, due[2].ID)
}

func TestStore_DueExecutions_StaysEligibleUntilClaimed(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Now().UTC()

	execution := newExecution("campaign-1", "lead-1", now.Add(-time.Minute))
	require.NoError(t, st.SaveExecution(ctx, execution))

	for i := 0; i < 3; i++ {
		due, err := st.DueExecutions(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
	}

	_, err := st.ClaimExecution(ctx, execution.ID, now)
	require.NoError(t, err)

	due, err := st.DueExecutions(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_DueExecutions_SkipsRescheduledStaleEntries(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Now().UTC()

	execution := newExecution("campaign-1", "lead-1", now.Add(-time.Minute))
	require.NoError(t, st.SaveExecution(ctx, execution))

	// Reschedule into the future; the old index entry must not surface
	// the record.
	execution.ScheduledFor = now.Add(time.Hour)
	require.NoError(t, st.SaveExecution(ctx, execution))

	due, err := st.DueExecutions(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_DueExecutions_ZeroLimit(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	execution := newExecution("campaign-1", "lead-1", time.Now().Add(-time.Minute))
	require.NoError(t, st.SaveExecution(ctx, execution))

	due, err := st.DueExecutions(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_ClaimExecution(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Now().UTC()

	execution := newExecution("campaign-1", "lead-1", now.Add(-time.Minute))
	require.NoError(t, st.SaveExecution(ctx, execution))

	claimed, err := st.ClaimExecution(ctx, execution.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuting, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LastAttempt)

	// Second claim loses the race.
	_, err = st.ClaimExecution(ctx, execution.ID, now)
	assert.True(t, store.IsExecutionNotClaimable(err))

	_, err = st.ClaimExecution(ctx, "missing", now)
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestStore_FilterQueries(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Now()

	a := newExecution("campaign-a", "lead-1", now)
	b := newExecution("campaign-b", "lead-1", now)
	c := newExecution("campaign-a", "lead-2", now)
	c.SequenceID = "seq-1"
	c.Status = models.ExecutionStatusFailed

	for _, e := range []*models.Execution{a, b, c} {
		require.NoError(t, st.SaveExecution(ctx, e))
	}

	byCampaign, err := st.ExecutionsByCampaign(ctx, "campaign-a")
	require.NoError(t, err)
	assert.Len(t, byCampaign, 2)

	byLead, err := st.ExecutionsByLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Len(t, byLead, 2)

	byStatus, err := st.ExecutionsByStatus(ctx, models.ExecutionStatusFailed)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, c.ID, byStatus[0].ID)

	bySequence, err := st.ExecutionsBySequence(ctx, "seq-1")
	require.NoError(t, err)
	require.Len(t, bySequence, 1)
	assert.Equal(t, c.ID, bySequence[0].ID)
}

func TestStore_CountByStatus(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Now()

	a := newExecution("campaign-a", "lead-1", now)
	b := newExecution("campaign-a", "lead-2", now)
	b.Status = models.ExecutionStatusCompleted
	c := newExecution("campaign-b", "lead-3", now)

	for _, e := range []*models.Execution{a, b, c} {
		require.NoError(t, st.SaveExecution(ctx, e))
	}

	counts, err := st.CountByStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.ExecutionStatusScheduled])
	assert.Equal(t, 1, counts[models.ExecutionStatusCompleted])

	counts, err = st.CountByStatus(ctx, "campaign-a")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.ExecutionStatusScheduled])
	assert.Equal(t, 1, counts[models.ExecutionStatusCompleted])
}

func TestStore_PurgeTerminal(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	now := time.Now().UTC()

	old := newExecution("campaign-1", "lead-1", now)
	old.Status = models.ExecutionStatusCompleted
	old.UpdatedAt = now.Add(-48 * time.Hour)

	recent := newExecution("campaign-1", "lead-2", now)
	recent.Status = models.ExecutionStatusFailed
	recent.UpdatedAt = now

	pending := newExecution("campaign-1", "lead-3", now)
	pending.UpdatedAt = now.Add(-48 * time.Hour)

	for _, e := range []*models.Execution{old, recent, pending} {
		require.NoError(t, st.SaveExecution(ctx, e))
	}

	purged, err := st.PurgeTerminal(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = st.ExecutionByID(ctx, old.ID)
	assert.True(t, store.IsExecutionNotFound(err))

	_, err = st.ExecutionByID(ctx, pending.ID)
	assert.NoError(t, err)
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	execution := newExecution("campaign-1", "lead-1", time.Now())
	require.NoError(t, st.SaveExecution(ctx, execution))

	ok, err := st.DeleteExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.DeleteExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SaveExecution(ctx, execution))
	require.NoError(t, st.Clear(ctx))

	due, err := st.DueExecutions(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_Recurrences(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	recurrence, err := models.NewRecurrence("rec-1", "campaign-1", []string{"lead-1"}, "0 9 * * *")
	require.NoError(t, err)
	require.NoError(t, st.SaveRecurrence(ctx, recurrence))

	found, err := st.RecurrenceByID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, recurrence.CampaignID, found.CampaignID)

	all, err := st.Recurrences(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Not due yet: NextDueAt is in the future.
	due, err := st.DueRecurrences(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = st.DueRecurrences(ctx, recurrence.NextDueAt.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	ok, err := st.DeleteRecurrence(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = st.RecurrenceByID(ctx, "rec-1")
	assert.True(t, store.IsRecurrenceNotFound(err))
}

func TestStore_Communications(t *testing.T) {
	ctx := context.Background()
	st := NewStore()

	record := &models.CommunicationRecord{
		ID:          "comm-1",
		ExecutionID: "exec-1",
		CampaignID:  "campaign-1",
		LeadID:      "lead-1",
		Channel:     models.ChannelEmail,
		SentAt:      time.Now().UTC(),
	}

	require.NoError(t, st.SaveCommunication(ctx, record))

	records, err := st.CommunicationsByLead(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "comm-1", records[0].ID)

	records, err = st.CommunicationsByLead(ctx, "lead-2")
	require.NoError(t, err)
	assert.Empty(t, records)
}
