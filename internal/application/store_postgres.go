// internal/application/store_postgres.go
package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"memberportal/internal/eventstore"
)

const aggregateType = "application"

// Schema creates the tables PostgresStore needs. The event log comes from
// eventstore.Schema.
const Schema = `
CREATE TABLE IF NOT EXISTS applications (
	id UUID PRIMARY KEY,
	applicant_id UUID NOT NULL,
	status TEXT NOT NULL,
	document JSONB NOT NULL,
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS applications_one_open_per_applicant
	ON applications (applicant_id)
	WHERE status NOT IN ('approved', 'rejected', 'withdrawn');`

// PostgresStore keeps the current application document in a row guarded by its
// version and appends every committed change to the event log in the same transaction.
type PostgresStore struct {
	db     *sqlx.DB
	events *eventstore.EventStore
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, events: eventstore.NewEventStore(db)}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Application, error) {
	var doc []byte
	err := s.db.QueryRowxContext(ctx, `SELECT document FROM applications WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, ErrNotFound
	}
	if err != nil {
		return Application{}, fmt.Errorf("get application: %w", err)
	}
	return decodeApplication(doc)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Application, error) {
	owner := uuid.NullUUID{UUID: f.OwnerID, Valid: f.OwnerID != uuid.Nil}

	var docs [][]byte
	err := s.db.SelectContext(ctx, &docs, `
		SELECT document FROM applications
		WHERE ($1::uuid IS NULL OR applicant_id = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
	`, owner, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	apps := make([]Application, 0, len(docs))
	for _, doc := range docs {
		app, err := decodeApplication(doc)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (s *PostgresStore) Save(ctx context.Context, app Application, expectedVersion int) (Application, error) {
	doc, err := json.Marshal(app)
	if err != nil {
		return Application{}, fmt.Errorf("encode application: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Application{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if expectedVersion == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO applications (id, applicant_id, status, document, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, app.ID, app.ApplicantID, string(app.Status), doc, app.Version, app.CreatedAt, app.UpdatedAt)
		if err != nil {
			return Application{}, uniqueViolation(err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE applications
			SET status = $2, document = $3, version = $4, updated_at = $5
			WHERE id = $1 AND version = $6
		`, app.ID, string(app.Status), doc, app.Version, app.UpdatedAt, expectedVersion)
		if err != nil {
			return Application{}, uniqueViolation(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return Application{}, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return Application{}, s.missOrConflict(ctx, tx, app.ID)
		}
	}

	change, err := json.Marshal(changeOf(app))
	if err != nil {
		return Application{}, fmt.Errorf("encode change: %w", err)
	}
	err = s.events.AppendTx(ctx, tx, app.ID, aggregateType, expectedVersion, []eventstore.Event{{
		EventType: string(app.LastEvent),
		EventData: change,
		Metadata:  map[string]any{"actor_id": app.UpdatedBy.String()},
		CreatedAt: app.UpdatedAt,
	}})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return Application{}, ErrConflict
	}
	if err != nil {
		return Application{}, err
	}

	if err := tx.Commit(); err != nil {
		return Application{}, fmt.Errorf("commit transaction: %w", err)
	}
	return app.Clone(), nil
}

func (s *PostgresStore) missOrConflict(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var version int
	err := tx.QueryRowxContext(ctx, `SELECT version FROM applications WHERE id = $1`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	return ErrConflict
}

func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if pqErr.Constraint == "applications_pkey" {
			return ErrConflict
		}
		return ErrAlreadyExists
	}
	return fmt.Errorf("write application: %w", err)
}

func (s *PostgresStore) History(ctx context.Context, id uuid.UUID) ([]Change, error) {
	events, err := s.events.LoadEvents(ctx, id, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}

	changes := make([]Change, 0, len(events))
	for _, e := range events {
		var c Change
		if err := json.Unmarshal(e.EventData, &c); err != nil {
			return nil, fmt.Errorf("decode change %d: %w", e.Version, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func decodeApplication(doc []byte) (Application, error) {
	var app Application
	if err := json.Unmarshal(doc, &app); err != nil {
		return Application{}, fmt.Errorf("decode application: %w", err)
	}
	return app, nil
}
