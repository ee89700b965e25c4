package cases

import (
	"context"
	"sort"
	"sync"
	"time"

	"ndsregistry/internal/domain"
	"ndsregistry/pkg/platform/sentinel"
)

// InMemoryStore keeps cases in process memory for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	cases  map[int64]Case
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{cases: make(map[int64]Case)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.cases[c.ID] = *c
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cases[id]; ok {
		return &c, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cases[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Type = c.Type
	stored.Platform = c.Platform
	stored.Reason = c.Reason
	stored.Status = c.Status
	stored.UpdatedAt = c.UpdatedAt
	s.cases[c.ID] = stored
	return nil
}

func (s *InMemoryStore) AttachThread(_ context.Context, id int64, threadRef string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cases[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.MirrorThreadRef != "" {
		return sentinel.ErrConflict
	}
	stored.MirrorThreadRef = threadRef
	stored.UpdatedAt = now
	s.cases[id] = stored
	return nil
}

func (s *InMemoryStore) Touch(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cases[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.UpdatedAt = now
	s.cases[id] = stored
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID int64, limit int) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for id := range s.cases {
		c := s.cases[id]
		if c.IdentityID == identityID {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, f Filter) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for id := range s.cases {
		c := s.cases[id]
		if f.IdentityID != 0 && c.IdentityID != f.IdentityID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.CaseType != "" && c.Type != f.CaseType {
			continue
		}
		if f.Platform != "" && c.Platform != f.Platform {
			continue
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Stats(_ context.Context, trendStart time.Time) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	byType := make(map[string]int)
	byPlatform := make(map[string]int)
	byDay := make(map[string]int)

	for _, c := range s.cases {
		stats.Total++
		switch c.Status {
		case domain.StatusOpen:
			stats.Open++
		case domain.StatusClosed:
			stats.Closed++
		case domain.StatusArchived:
			stats.Archived++
		}
		byType[string(c.Type)]++
		byPlatform[string(c.Platform)]++
		if !c.CreatedAt.Before(trendStart) {
			byDay[c.CreatedAt.UTC().Format("2006-01-02")]++
		}
	}

	stats.ByType = bucketize(byType)
	stats.ByPlatform = bucketize(byPlatform)
	for day, count := range byDay {
		stats.Trend = append(stats.Trend, TrendPoint{Day: day, Count: count})
	}
	sort.Slice(stats.Trend, func(i, j int) bool { return stats.Trend[i].Day < stats.Trend[j].Day })
	return stats, nil
}

func bucketize(counts map[string]int) []Bucket {
	buckets := make([]Bucket, 0, len(counts))
	for label, count := range counts {
		buckets = append(buckets, Bucket{Label: label, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})
	return buckets
}
