// internal/volunteer/store_postgres.go
package volunteer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema creates the table PostgresStore needs.
const Schema = `
CREATE TABLE IF NOT EXISTS volunteer_hours (
	id UUID PRIMARY KEY,
	member_id UUID NOT NULL,
	opportunity_id UUID,
	hours NUMERIC(4, 2) NOT NULL CHECK (hours > 0 AND hours <= 24),
	worked_on DATE NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	reviewed_by UUID,
	reviewed_at TIMESTAMPTZ,
	rejection_reason TEXT NOT NULL DEFAULT '',
	admin_notes TEXT NOT NULL DEFAULT '',
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS volunteer_hours_member ON volunteer_hours (member_id, worked_on DESC);`

const entryColumns = `id, member_id, opportunity_id, hours, worked_on, description, status,
	reviewed_by, reviewed_at, rejection_reason, admin_notes, version, created_at`

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e Entry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO volunteer_hours (`+entryColumns+`)
		VALUES (:id, :member_id, :opportunity_id, :hours, :worked_on, :description, :status,
			:reviewed_by, :reviewed_at, :rejection_reason, :admin_notes, :version, :created_at)
	`, e)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert volunteer hours: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	var e Entry
	err := s.db.GetContext(ctx, &e, `SELECT `+entryColumns+` FROM volunteer_hours WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get volunteer hours: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM volunteer_hours WHERE 1 = 1`
	var args []any
	if f.MemberID != uuid.Nil {
		args = append(args, f.MemberID)
		query += fmt.Sprintf(" AND member_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY worked_on DESC, created_at DESC"

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list volunteer hours: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Update(ctx context.Context, e Entry, expectedVersion int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE volunteer_hours
		SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5, admin_notes = $6, version = $7
		WHERE id = $1 AND version = $8
	`, e.ID, string(e.Status), e.ReviewedBy, e.ReviewedAt, e.RejectionReason, e.AdminNotes, e.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("update volunteer hours: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, e.ID); err != nil {
		return err
	}
	return ErrConflict
}
