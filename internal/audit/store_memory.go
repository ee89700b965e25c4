package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps the audit trail in process memory for development and
// tests. Ids are assigned from a single counter so per-case ordering matches
// the Postgres BIGSERIAL behavior.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	events map[int64][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[int64][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	s.events[event.CaseID] = append(s.events[event.CaseID], *event)
	return nil
}

func (s *InMemoryStore) ListByCase(_ context.Context, caseID int64, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[caseID]
	out := make([]*Event, 0, len(events))
	// Appended in id order; reverse for newest-first reads.
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		out = append(out, &event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountByCase(_ context.Context, caseID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[caseID]), nil
}
