// internal/events/store_memory.go
package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu            sync.RWMutex
	events        map[uuid.UUID]Event
	registrations map[uuid.UUID][]Registration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[uuid.UUID]Event),
		registrations: make(map[uuid.UUID][]Registration),
	}
}

func (s *MemoryStore) Create(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return ErrConflict
	}
	e.AllowedTiers = slices.Clone(e.AllowedTiers)
	s.events[e.ID] = e
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	e.AllowedTiers = slices.Clone(e.AllowedTiers)
	return e, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		e.AllowedTiers = slices.Clone(e.AllowedTiers)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Event) int { return a.StartsAt.Compare(b.StartsAt) })
	return out, nil
}

func (s *MemoryStore) IsRegistered(ctx context.Context, eventID, memberID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registeredLocked(eventID, memberID), nil
}

func (s *MemoryStore) registeredLocked(eventID, memberID uuid.UUID) bool {
	return slices.ContainsFunc(s.registrations[eventID], func(r Registration) bool { return r.MemberID == memberID })
}

func (s *MemoryStore) Registrations(ctx context.Context, eventID uuid.UUID) ([]Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, ErrEventNotFound
	}
	return slices.Clone(s.registrations[eventID]), nil
}

func (s *MemoryStore) Register(ctx context.Context, eventID, memberID uuid.UUID, expectedVersion int, at time.Time) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	if s.registeredLocked(eventID, memberID) {
		return Event{}, ErrAlreadyRegistered
	}
	if e.Version != expectedVersion || e.Registered >= e.Capacity {
		return Event{}, ErrConflict
	}

	e.Registered++
	e.Version++
	s.events[eventID] = e
	s.registrations[eventID] = append(s.registrations[eventID], Registration{EventID: eventID, MemberID: memberID, RegisteredAt: at})
	e.AllowedTiers = slices.Clone(e.AllowedTiers)
	return e, nil
}
