// internal/volunteer/store.go
package volunteer

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Store persists logged hours.
type Store interface {
	Create(ctx context.Context, e Entry) error
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
	// Update replaces the entry if it is still at expectedVersion, otherwise ErrConflict.
	Update(ctx context.Context, e Entry, expectedVersion int) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]Entry)}
}

func (s *MemoryStore) Create(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok {
		return ErrConflict
	}
	s.entries[e.ID] = e
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, e Entry, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[e.ID]
	if !ok {
		return ErrEntryNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	s.entries[e.ID] = e
	return nil
}
