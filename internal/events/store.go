// internal/events/store.go
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists events and their registrations.
type Store interface {
	Create(ctx context.Context, e Event) error
	Get(ctx context.Context, id uuid.UUID) (Event, error)
	List(ctx context.Context) ([]Event, error)
	IsRegistered(ctx context.Context, eventID, memberID uuid.UUID) (bool, error)
	Registrations(ctx context.Context, eventID uuid.UUID) ([]Registration, error)
	// Register takes a seat for memberID if the event is still at expectedVersion.
	// It returns ErrConflict when the version moved or no seat is left.
	Register(ctx context.Context, eventID, memberID uuid.UUID, expectedVersion int, at time.Time) (Event, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
