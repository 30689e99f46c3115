// internal/application/store.go
package application

import (
	"context"

	"github.com/google/uuid"
)

// Store persists applications with a compare-and-set on Version.
//
// Save with expectedVersion 0 inserts and fails with ErrConflict when the id is
// taken. Otherwise it succeeds only if the stored version equals expectedVersion,
// failing with ErrConflict when it does not and ErrNotFound when nothing is stored.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Application, error)
	List(ctx context.Context, f Filter) ([]Application, error)
	Save(ctx context.Context, app Application, expectedVersion int) (Application, error)
}

// History exposes the committed versions of an application, oldest first.
type History interface {
	History(ctx context.Context, id uuid.UUID) ([]Change, error)
}

func changeOf(app Application) Change {
	return Change{
		ApplicationID: app.ID,
		Event:         app.LastEvent,
		Status:        app.Status,
		Version:       app.Version,
		ActorID:       app.UpdatedBy,
		OccurredAt:    app.UpdatedAt,
	}
}

// Repository is a Store that also keeps history.
type Repository interface {
	Store
	History
}

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)
