package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
)

// Stats is the per-status execution count breakdown.
type Stats struct {
	CampaignID string                         `json:"campaign_id,omitempty"`
	Counts     map[models.ExecutionStatus]int `json:"counts"`
	Total      int                            `json:"total"`
}

// Health is the operational summary exposed by the monitor.
type Health struct {
	IsRunning         bool `json:"is_running"`
	TotalExecutions   int  `json:"total_executions"`
	PendingExecutions int  `json:"pending_executions"`
	FailedExecutions  int  `json:"failed_executions"`
}

// Report combines the stats summary with the most recent failures and the
// next upcoming executions.
type Report struct {
	Summary            Stats               `json:"summary"`
	RecentFailures     []*models.Execution `json:"recent_failures"`
	UpcomingExecutions []*models.Execution `json:"upcoming_executions"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// Stats returns the execution counts by status, optionally filtered by
// campaign (empty campaignID means all campaigns).
func (m *Monitor) Stats(ctx context.Context, campaignID string) (*Stats, error) {
	counts, err := m.store.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	return &Stats{
		CampaignID: campaignID,
		Counts:     counts,
		Total:      total,
	}, nil
}

// Health returns the running flag plus total, pending and failed counts.
func (m *Monitor) Health(ctx context.Context) (*Health, error) {
	stats, err := m.Stats(ctx, "")
	if err != nil {
		return nil, err
	}

	return &Health{
		IsRunning:         m.IsRunning(),
		TotalExecutions:   stats.Total,
		PendingExecutions: stats.Counts[models.ExecutionStatusScheduled],
		FailedExecutions:  stats.Counts[models.ExecutionStatusFailed],
	}, nil
}

// Report returns the summary, the ten most recent failures (by last attempt,
// newest first) and the ten next upcoming executions (by scheduled time,
// earliest first), optionally filtered by campaign.
func (m *Monitor) Report(ctx context.Context, campaignID string) (*Report, error) {
	summary, err := m.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	failed, err := m.store.ExecutionsByStatus(ctx, models.ExecutionStatusFailed)
	if err != nil {
		return nil, err
	}

	scheduled, err := m.store.ExecutionsByStatus(ctx, models.ExecutionStatusScheduled)
	if err != nil {
		return nil, err
	}

	failures := filterByCampaign(failed, campaignID)
	upcoming := filterByCampaign(scheduled, campaignID)

	sort.Slice(failures, func(i, j int) bool {
		return lastAttemptTime(failures[i]).After(lastAttemptTime(failures[j]))
	})

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].ScheduledFor.Before(upcoming[j].ScheduledFor)
	})

	return &Report{
		Summary:            *summary,
		RecentFailures:     topN(failures, reportTopN),
		UpcomingExecutions: topN(upcoming, reportTopN),
		GeneratedAt:        time.Now().UTC(),
	}, nil
}

func filterByCampaign(executions []*models.Execution, campaignID string) []*models.Execution {
	if campaignID == "" {
		return executions
	}

	filtered := executions[:0:0]

	for _, execution := range executions {
		if execution.CampaignID == campaignID {
			filtered = append(filtered, execution)
		}
	}

	return filtered
}

func lastAttemptTime(execution *models.Execution) time.Time {
	if execution.LastAttempt != nil {
		return *execution.LastAttempt
	}

	return execution.UpdatedAt
}

func topN(executions []*models.Execution, n int) []*models.Execution {
	if len(executions) > n {
		return executions[:n]
	}

	return executions
}
