package memory

import (
	"context"
	"sync"

	audit "esfe/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EnrollmentID] = append(s.events[event.EnrollmentID], event)
	s.order = append(s.order, event)
	return nil
}

// ListByEnrollment returns the events recorded for one enrollment in order.
func (s *InMemoryStore) ListByEnrollment(_ context.Context, enrollmentID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[enrollmentID]...), nil
}

// ListRecent returns the most recent N events across all enrollments.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.order) > limit {
		start = len(s.order) - limit
	}
	return append([]audit.Event{}, s.order[start:]...), nil
}

// CountAction counts events with the given action for an enrollment.
func (s *InMemoryStore) CountAction(enrollmentID string, action audit.AuditEvent) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events[enrollmentID] {
		if e.Action == string(action) {
			n++
		}
	}
	return n
}
