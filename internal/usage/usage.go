// Package usage records one entry per dispatched request.
package usage

import (
	"sync"
	"time"

	"slotgateway/internal/models"
)

type Record struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	RequestID   string       `json:"requestId"`
	TraceID     string       `json:"traceId"`
	APIKeyName  string       `json:"apiKeyName"`
	IncomingAPI string       `json:"incomingApi"`
	TaskClass   string       `json:"taskClass"`
	PromptID    string       `json:"promptId,omitempty"`
	SlotID      int          `json:"slot"`
	Provider    string       `json:"provider"`
	Model       string       `json:"model"`
	Status      string       `json:"status"`
	ErrorKind   string       `json:"errorKind,omitempty"`
	Attempts    int          `json:"attempts"`
	DurationMs  int64        `json:"durationMs"`
	Usage       models.Usage `json:"usage"`
}

type Sink interface {
	Add(r Record)
	List(limit int) []Record
}

type InMemory struct {
	mu      sync.RWMutex
	records []Record
	max     int
}

func NewInMemory(max int) *InMemory {
	if max <= 0 {
		max = 1000
	}
	return &InMemory{max: max, records: make([]Record, 0, max)}
}

func (s *InMemory) Add(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == s.max {
		s.records = s.records[1:]
	}
	s.records = append(s.records, r)
}

// List returns the newest records first.
func (s *InMemory) List(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// Fanout writes to every sink and lists from the first.
type Fanout []Sink

func (f Fanout) Add(r Record) {
	for _, s := range f {
		s.Add(r)
	}
}

func (f Fanout) List(limit int) []Record {
	if len(f) == 0 {
		return nil
	}
	return f[0].List(limit)
}
