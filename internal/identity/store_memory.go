package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"ndsregistry/pkg/platform/sentinel"
)

// In-memory stores keep development and tests lightweight. They intentionally
// favor clarity over performance.

type InMemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	byID         map[int64]Identity
	byIdentifier map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:         make(map[int64]Identity),
		byIdentifier: make(map[string]int64),
	}
}

func (s *InMemoryStore) Create(_ context.Context, ident *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byIdentifier[ident.Identifier]; exists {
		return sentinel.ErrConflict
	}
	s.nextID++
	ident.ID = s.nextID
	s.byID[ident.ID] = *ident
	s.byIdentifier[ident.Identifier] = ident.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ident, ok := s.byID[id]; ok {
		return &ident, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByIdentifier(_ context.Context, identifier string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byIdentifier[identifier]; ok {
		ident := s.byID[id]
		return &ident, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Touch(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	ident.UpdatedAt = now
	s.byID[id] = ident
	return nil
}

type InMemoryIntelStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64][]IntelRecord
}

func NewInMemoryIntelStore() *InMemoryIntelStore {
	return &InMemoryIntelStore{records: make(map[int64][]IntelRecord)}
}

func (s *InMemoryIntelStore) Append(_ context.Context, rec *IntelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records[rec.IdentityID] = append(s.records[rec.IdentityID], *rec)
	return nil
}

func (s *InMemoryIntelStore) ListByIdentity(_ context.Context, identityID int64, limit int) ([]*IntelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[identityID]
	out := make([]*IntelRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		out = append(out, &rec)
	}
	// Newest first, capped.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryIntelStore) CountByIdentity(_ context.Context, identityID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[identityID]), nil
}
