package audit

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store
type memStore struct {
	mu      sync.Mutex
	entries []*LogEntry
	err     error
}

func (s *memStore) Append(ctx context.Context, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	entry.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memStore) all() []*LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// memResolver hands out one memStore per partition
type memResolver struct {
	mu      sync.Mutex
	shared  *memStore
	tenants map[string]*memStore
	err     error
}

func newMemResolver() *memResolver {
	return &memResolver{
		shared:  &memStore{},
		tenants: make(map[string]*memStore),
	}
}

func (r *memResolver) Handle(ctx context.Context, p Partition) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if p.Shared {
		return r.shared, nil
	}
	return r.tenant(p.Tenant), nil
}

func (r *memResolver) tenant(key string) *memStore {
	s, ok := r.tenants[key]
	if !ok {
		s = &memStore{}
		r.tenants[key] = s
	}
	return s
}

func (r *memResolver) tenantEntries(key string) []*LogEntry {
	r.mu.Lock()
	s := r.tenant(key)
	r.mu.Unlock()
	return s.all()
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestRecorder(resolver HandleResolver) *Recorder {
	return NewRecorder(NewRouter(resolver), WithClock(func() time.Time { return fixedNow }))
}

func strPtr(s string) *string {
	return &s
}
