// internal/events/store_postgres.go
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"memberportal/internal/access"
	"memberportal/internal/eventstore"
)

const aggregateType = "portal_event"

// Schema creates the tables PostgresStore needs. Seat changes are also logged to
// the table from eventstore.Schema.
const Schema = `
CREATE TABLE IF NOT EXISTS portal_events (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	starts_at TIMESTAMPTZ NOT NULL,
	allowed_tiers TEXT[] NOT NULL DEFAULT '{}',
	requires_active_membership BOOLEAN NOT NULL DEFAULT TRUE,
	registration_opens TIMESTAMPTZ,
	registration_closes TIMESTAMPTZ,
	capacity INT NOT NULL CHECK (capacity > 0),
	registered INT NOT NULL DEFAULT 0 CHECK (registered <= capacity),
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS event_registrations (
	event_id UUID NOT NULL REFERENCES portal_events (id),
	member_id UUID NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, member_id)
);`

const eventColumns = `id, title, description, starts_at, allowed_tiers, requires_active_membership,
	registration_opens, registration_closes, capacity, registered, version, created_at`

type eventRow struct {
	ID                       uuid.UUID      `db:"id"`
	Title                    string         `db:"title"`
	Description              string         `db:"description"`
	StartsAt                 time.Time      `db:"starts_at"`
	AllowedTiers             pq.StringArray `db:"allowed_tiers"`
	RequiresActiveMembership bool           `db:"requires_active_membership"`
	RegistrationOpens        sql.NullTime   `db:"registration_opens"`
	RegistrationCloses       sql.NullTime   `db:"registration_closes"`
	Capacity                 int            `db:"capacity"`
	Registered               int            `db:"registered"`
	Version                  int            `db:"version"`
	CreatedAt                time.Time      `db:"created_at"`
}

func (r eventRow) event() Event {
	e := Event{
		ID:                       r.ID,
		Title:                    r.Title,
		Description:              r.Description,
		StartsAt:                 r.StartsAt,
		RequiresActiveMembership: r.RequiresActiveMembership,
		RegistrationOpens:        r.RegistrationOpens.Time,
		RegistrationCloses:       r.RegistrationCloses.Time,
		Capacity:                 r.Capacity,
		Registered:               r.Registered,
		Version:                  r.Version,
		CreatedAt:                r.CreatedAt,
	}
	for _, t := range r.AllowedTiers {
		e.AllowedTiers = append(e.AllowedTiers, access.Tier(t))
	}
	return e
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type PostgresStore struct {
	db  *sqlx.DB
	log *eventstore.EventStore
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, log: eventstore.NewEventStore(db)}
}

type createdData struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	Capacity int       `json:"capacity"`
}

type registeredData struct {
	MemberID   uuid.UUID `json:"member_id"`
	Registered int       `json:"registered"`
}

func (s *PostgresStore) append(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, expectedVersion int, eventType string, data any, at time.Time) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	err = s.log.AppendTx(ctx, tx, eventID, aggregateType, expectedVersion, []eventstore.Event{{
		EventType: eventType,
		EventData: payload,
		CreatedAt: at,
	}})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) Create(ctx context.Context, e Event) error {
	tiers := make(pq.StringArray, 0, len(e.AllowedTiers))
	for _, t := range e.AllowedTiers {
		tiers = append(tiers, string(t))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO portal_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, e.StartsAt, tiers, e.RequiresActiveMembership,
		nullTime(e.RegistrationOpens), nullTime(e.RegistrationCloses),
		e.Capacity, e.Registered, e.Version, e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	created := createdData{Title: e.Title, StartsAt: e.StartsAt, Capacity: e.Capacity}
	if err := s.append(ctx, tx, e.ID, e.Version-1, "EventCreated", created, e.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM portal_events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return row.event(), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+eventColumns+` FROM portal_events ORDER BY starts_at`); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, nil
}

func (s *PostgresStore) IsRegistered(ctx context.Context, eventID, memberID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM event_registrations WHERE event_id = $1 AND member_id = $2)`, eventID, memberID)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Registrations(ctx context.Context, eventID uuid.UUID) ([]Registration, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}
	var regs []Registration
	err := s.db.SelectContext(ctx, &regs,
		`SELECT event_id, member_id, registered_at FROM event_registrations WHERE event_id = $1 ORDER BY registered_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// Register bumps the seat count under a version guard, records the seat and logs
// MemberRegistered in one transaction, so a duplicate registration rolls the count back.
func (s *PostgresStore) Register(ctx context.Context, eventID, memberID uuid.UUID, expectedVersion int, at time.Time) (Event, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Event{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row eventRow
	err = tx.QueryRowxContext(ctx, `
		UPDATE portal_events
		SET registered = registered + 1, version = version + 1
		WHERE id = $1 AND version = $2 AND registered < capacity
		RETURNING `+eventColumns, eventID, expectedVersion).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM portal_events WHERE id = $1)`, eventID); err != nil {
			return Event{}, fmt.Errorf("check event: %w", err)
		}
		if !exists {
			return Event{}, ErrEventNotFound
		}
		return Event{}, ErrConflict
	}
	if err != nil {
		return Event{}, fmt.Errorf("take seat: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO event_registrations (event_id, member_id, registered_at) VALUES ($1, $2, $3)`,
		eventID, memberID, at)
	if isUniqueViolation(err) {
		return Event{}, ErrAlreadyRegistered
	}
	if err != nil {
		return Event{}, fmt.Errorf("insert registration: %w", err)
	}

	registered := registeredData{MemberID: memberID, Registered: row.Registered}
	if err := s.append(ctx, tx, eventID, expectedVersion, "MemberRegistered", registered, at); err != nil {
		return Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return Event{}, fmt.Errorf("commit transaction: %w", err)
	}
	return row.event(), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
