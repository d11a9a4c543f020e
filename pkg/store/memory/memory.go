// Package memory provides an in-memory store implementation used as the
// lightweight and test mode of the engine. All state is lost on restart;
// production deployments use the postgresql store.
package memory

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

// Store implements store.Store backed by maps guarded by a RWMutex, with a
// min-heap index keyed by scheduledFor so that DueExecutions returns the
// earliest-due work first under the batch cap.
type Store struct {
	mu             sync.RWMutex
	executions     map[string]*models.Execution
	dueIndex       *dueHeap
	recurrences    map[string]*models.Recurrence
	communications map[string][]*models.CommunicationRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	idx := &dueHeap{}
	heap.Init(idx)

	return &Store{
		executions:     make(map[string]*models.Execution),
		dueIndex:       idx,
		recurrences:    make(map[string]*models.Recurrence),
		communications: make(map[string][]*models.CommunicationRecord),
	}
}

// Close performs any necessary cleanup. For the in-memory store there is
// nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// SaveExecution inserts or overwrites the execution by ID.
func (s *Store) SaveExecution(_ context.Context, execution *models.Execution) error {
	if err := execution.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneExecution(execution)
	s.executions[stored.ID] = stored

	if stored.Status == models.ExecutionStatusScheduled {
		heap.Push(s.dueIndex, dueEntry{id: stored.ID, at: stored.ScheduledFor})
	}

	return nil
}

// ExecutionByID returns the execution with the given ID.
func (s *Store) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[id]
	if !ok {
		return nil, store.ErrExecutionNotFound
	}

	return cloneExecution(execution), nil
}

// ExecutionsByCampaign returns all executions for a campaign.
func (s *Store) ExecutionsByCampaign(_ context.Context, campaignID string) ([]*models.Execution, error) {
	return s.filterExecutions(func(e *models.Execution) bool {
		return e.CampaignID == campaignID
	}), nil
}

// ExecutionsByLead returns all executions for a lead.
func (s *Store) ExecutionsByLead(_ context.Context, leadID string) ([]*models.Execution, error) {
	return s.filterExecutions(func(e *models.Execution) bool {
		return e.LeadID == leadID
	}), nil
}

// ExecutionsByStatus returns all executions with the given status.
func (s *Store) ExecutionsByStatus(_ context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return s.filterExecutions(func(e *models.Execution) bool {
		return e.Status == status
	}), nil
}

// ExecutionsBySequence returns all executions created by one sequence.
func (s *Store) ExecutionsBySequence(_ context.Context, sequenceID string) ([]*models.Execution, error) {
	return s.filterExecutions(func(e *models.Execution) bool {
		return e.SequenceID == sequenceID
	}), nil
}

// DueExecutions returns up to limit scheduled executions whose scheduledFor
// has passed, earliest first. Returned records stay eligible until claimed:
// their index entries are re-pushed so a later call sees them again.
func (s *Store) DueExecutions(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*models.Execution, 0, limit)
	returned := make([]dueEntry, 0, limit)
	seen := make(map[string]bool, limit)

	for s.dueIndex.Len() > 0 && len(due) < limit {
		top := (*s.dueIndex)[0]
		if top.at.After(now) {
			break
		}

		entry, _ := heap.Pop(s.dueIndex).(dueEntry)

		// Stale entries (claimed, cancelled or rescheduled records)
		// are dropped lazily here.
		execution, ok := s.executions[entry.id]
		if !ok || execution.Status != models.ExecutionStatusScheduled || !execution.ScheduledFor.Equal(entry.at) {
			continue
		}

		if seen[entry.id] {
			continue
		}

		seen[entry.id] = true

		due = append(due, cloneExecution(execution))
		returned = append(returned, entry)
	}

	for _, entry := range returned {
		heap.Push(s.dueIndex, entry)
	}

	return due, nil
}

// ClaimExecution atomically transitions a scheduled execution to executing,
// incrementing its attempt counter. Callers must claim before processing so
// that overlapping ticks or manual force-process calls cannot double-run
// the same record.
func (s *Store) ClaimExecution(_ context.Context, id string, now time.Time) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, ok := s.executions[id]
	if !ok {
		return nil, store.ErrExecutionNotFound
	}

	if execution.Status != models.ExecutionStatusScheduled {
		return nil, store.ErrExecutionNotClaimable
	}

	attempt := now.UTC()
	execution.Status = models.ExecutionStatusExecuting
	execution.Attempts++
	execution.LastAttempt = &attempt
	execution.UpdatedAt = attempt

	return cloneExecution(execution), nil
}

// DeleteExecution removes an execution, reporting whether it existed.
func (s *Store) DeleteExecution(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.executions[id]
	delete(s.executions, id)

	return ok, nil
}

// CountByStatus returns execution counts grouped by status, optionally
// filtered by campaign.
func (s *Store) CountByStatus(_ context.Context, campaignID string) (map[models.ExecutionStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.ExecutionStatus]int)

	for _, execution := range s.executions {
		if campaignID != "" && execution.CampaignID != campaignID {
			continue
		}

		counts[execution.Status]++
	}

	return counts, nil
}

// PurgeTerminal deletes completed and failed executions whose last update
// is older than the cutoff. Returns the number of deleted records.
func (s *Store) PurgeTerminal(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0

	for id, execution := range s.executions {
		if execution.IsTerminal() && execution.UpdatedAt.Before(olderThan) {
			delete(s.executions, id)

			purged++
		}
	}

	return purged, nil
}

// Clear removes all executions.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions = make(map[string]*models.Execution)
	s.dueIndex = &dueHeap{}
	heap.Init(s.dueIndex)

	return nil
}

// SaveRecurrence inserts or overwrites the recurrence by ID.
func (s *Store) SaveRecurrence(_ context.Context, recurrence *models.Recurrence) error {
	if err := recurrence.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recurrences[recurrence.ID] = cloneRecurrence(recurrence)

	return nil
}

// RecurrenceByID returns the recurrence with the given ID.
func (s *Store) RecurrenceByID(_ context.Context, id string) (*models.Recurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recurrence, ok := s.recurrences[id]
	if !ok {
		return nil, store.ErrRecurrenceNotFound
	}

	return cloneRecurrence(recurrence), nil
}

// Recurrences returns all recurrences.
func (s *Store) Recurrences(_ context.Context) ([]*models.Recurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Recurrence, 0, len(s.recurrences))
	for _, recurrence := range s.recurrences {
		result = append(result, cloneRecurrence(recurrence))
	}

	return result, nil
}

// DueRecurrences returns all active recurrences due at the given time.
func (s *Store) DueRecurrences(_ context.Context, now time.Time) ([]*models.Recurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Recurrence

	for _, recurrence := range s.recurrences {
		if recurrence.IsDue(now) {
			due = append(due, cloneRecurrence(recurrence))
		}
	}

	return due, nil
}

// DeleteRecurrence removes a recurrence, reporting whether it existed.
func (s *Store) DeleteRecurrence(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.recurrences[id]
	delete(s.recurrences, id)

	return ok, nil
}

// SaveCommunication appends a communication record for the lead.
func (s *Store) SaveCommunication(_ context.Context, record *models.CommunicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	s.communications[record.LeadID] = append(s.communications[record.LeadID], &stored)

	return nil
}

// CommunicationsByLead returns all recorded communications for a lead.
func (s *Store) CommunicationsByLead(_ context.Context, leadID string) ([]*models.CommunicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.communications[leadID]

	result := make([]*models.CommunicationRecord, 0, len(records))
	for _, record := range records {
		copied := *record
		result = append(result, &copied)
	}

	return result, nil
}

func (s *Store) filterExecutions(match func(*models.Execution) bool) []*models.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Execution

	for _, execution := range s.executions {
		if match(execution) {
			result = append(result, cloneExecution(execution))
		}
	}

	return result
}

func cloneExecution(execution *models.Execution) *models.Execution {
	copied := *execution

	if execution.LastAttempt != nil {
		attempt := *execution.LastAttempt
		copied.LastAttempt = &attempt
	}

	return &copied
}

func cloneRecurrence(recurrence *models.Recurrence) *models.Recurrence {
	copied := *recurrence
	copied.LeadIDs = append([]string(nil), recurrence.LeadIDs...)

	return &copied
}
