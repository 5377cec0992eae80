// Package quota keeps advisory per-slot call counts for the current UTC day.
// Counts are informational only; the dispatcher never blocks on them.
package quota

import (
	"context"
	"sync"
	"time"
)

// Counter counts upstream calls per slot per UTC day.
type Counter interface {
	Incr(ctx context.Context, slotID int) (int64, error)
	Snapshot(ctx context.Context, slotIDs []int) (map[int]int64, error)
}

// Day returns the UTC day bucket for t.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Memory is a process-local Counter. Buckets from earlier days are dropped on rollover.
type Memory struct {
	mu     sync.Mutex
	day    string
	counts map[int]int64
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{counts: map[int]int64{}, now: time.Now}
}

func (m *Memory) rollLocked() {
	if d := Day(m.now()); d != m.day {
		m.day = d
		m.counts = map[int]int64{}
	}
}

func (m *Memory) Incr(_ context.Context, slotID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked()
	m.counts[slotID]++
	return m.counts[slotID], nil
}

func (m *Memory) Snapshot(_ context.Context, slotIDs []int) (map[int]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked()
	out := make(map[int]int64, len(slotIDs))
	for _, id := range slotIDs {
		out[id] = m.counts[id]
	}
	return out, nil
}
