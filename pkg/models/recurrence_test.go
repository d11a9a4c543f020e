package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecurrence(t *testing.T) {
	recurrence, err := NewRecurrence("rec-1", "campaign-1", []string{"lead-1", "lead-2"}, "0 9 * * *")

	require.NoError(t, err)
	require.NotNil(t, recurrence)
	assert.Equal(t, "rec-1", recurrence.ID)
	assert.Equal(t, "campaign-1", recurrence.CampaignID)
	assert.True(t, recurrence.Active)
	assert.False(t, recurrence.NextDueAt.IsZero())
	assert.True(t, recurrence.NextDueAt.After(time.Now().UTC().Add(-time.Minute)))
}

func TestNewRecurrence_InvalidExpression(t *testing.T) {
	recurrence, err := NewRecurrence("rec-1", "campaign-1", []string{"lead-1"}, "not a cron")

	assert.Error(t, err)
	assert.Nil(t, recurrence)
}

func TestRecurrence_UpdateNextDueAt(t *testing.T) {
	recurrence, err := NewRecurrence("rec-1", "campaign-1", []string{"lead-1"}, "*/5 * * * *")
	require.NoError(t, err)

	previous := recurrence.NextDueAt

	err = recurrence.UpdateNextDueAt()
	require.NoError(t, err)

	// Next run is always strictly in the future relative to now.
	assert.True(t, recurrence.NextDueAt.After(time.Now().UTC().Add(-time.Second)))
	assert.False(t, recurrence.NextDueAt.Before(previous))
}

func TestRecurrence_IsDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	recurrence := &Recurrence{
		ID:             "rec-1",
		CampaignID:     "campaign-1",
		LeadIDs:        []string{"lead-1"},
		CronExpression: "0 9 * * *",
		NextDueAt:      now.Add(-time.Minute),
		Active:         true,
	}

	assert.True(t, recurrence.IsDue(now))

	recurrence.Active = false
	assert.False(t, recurrence.IsDue(now))

	recurrence.Active = true
	recurrence.NextDueAt = now.Add(time.Minute)
	assert.False(t, recurrence.IsDue(now))
}

func TestRecurrence_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Recurrence)
		wantErr bool
	}{
		{"valid", func(r *Recurrence) {}, false},
		{"missing id", func(r *Recurrence) { r.ID = "" }, true},
		{"missing campaign", func(r *Recurrence) { r.CampaignID = "" }, true},
		{"no leads", func(r *Recurrence) { r.LeadIDs = nil }, true},
		{"missing expression", func(r *Recurrence) { r.CronExpression = "" }, true},
		{"malformed expression", func(r *Recurrence) { r.CronExpression = "61 * * * *" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recurrence, err := NewRecurrence("rec-1", "campaign-1", []string{"lead-1"}, "0 9 * * 1")
			require.NoError(t, err)

			tt.mutate(recurrence)

			err = recurrence.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
