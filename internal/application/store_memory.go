// internal/application/store_memory.go
package application

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	apps    map[uuid.UUID]Application
	history map[uuid.UUID][]Change
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:    make(map[uuid.UUID]Application),
		history: make(map[uuid.UUID][]Change),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return app.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Application
	for _, app := range s.apps {
		if f.Matches(app) {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, app Application, expectedVersion int) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.apps[app.ID]
	switch {
	case expectedVersion == 0 && exists:
		return Application{}, ErrConflict
	case expectedVersion == 0:
		for _, other := range s.apps {
			if other.ApplicantID == app.ApplicantID && !other.Status.Terminal() {
				return Application{}, ErrAlreadyExists
			}
		}
	case !exists:
		return Application{}, ErrNotFound
	case current.Version != expectedVersion:
		return Application{}, ErrConflict
	}

	stored := app.Clone()
	s.apps[app.ID] = stored
	s.history[app.ID] = append(s.history[app.ID], changeOf(stored))
	return stored.Clone(), nil
}

func (s *MemoryStore) History(ctx context.Context, id uuid.UUID) ([]Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes, ok := s.history[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Change, len(changes))
	copy(out, changes)
	return out, nil
}
