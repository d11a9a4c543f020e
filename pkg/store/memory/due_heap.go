package memory

import "time"

// dueEntry is one index entry in the scheduledFor min-heap. Entries are not
// removed when a record is claimed, cancelled or rescheduled; stale entries
// are dropped lazily when popped.
type dueEntry struct {
	id string
	at time.Time
}

type dueHeap []dueEntry

func (h dueHeap) Len() int { return len(h) }

func (h dueHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h dueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *dueHeap) Push(x any) {
	entry, _ := x.(dueEntry)
	*h = append(*h, entry)
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]

	return entry
}
