// internal/volunteer/domain.go
package volunteer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound   = errors.New("volunteer hours entry not found")
	ErrAlreadyReviewed = errors.New("volunteer hours entry was already reviewed")
	ErrConflict        = errors.New("volunteer hours entry was modified concurrently")
	ErrInvalidEntry    = errors.New("invalid volunteer hours entry")
)

// MaxHoursPerEntry caps one logged shift.
const MaxHoursPerEntry = 24

// Status is the review state of logged hours.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Entry is one block of volunteer hours awaiting or past review.
type Entry struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	MemberID        uuid.UUID  `json:"member_id" db:"member_id"`
	OpportunityID   *uuid.UUID `json:"opportunity_id,omitempty" db:"opportunity_id"`
	Hours           float64    `json:"hours" db:"hours"`
	Date            time.Time  `json:"date" db:"worked_on"`
	Description     string     `json:"description" db:"description"`
	Status          Status     `json:"status" db:"status"`
	ReviewedBy      *uuid.UUID `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	AdminNotes      string     `json:"admin_notes,omitempty" db:"admin_notes"`
	Version         int        `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks an entry as logged by a member. Hours cannot be logged for a
// day that has not started yet.
func (e Entry) Validate(now time.Time) error {
	var errs []error
	if e.Hours <= 0 || e.Hours > MaxHoursPerEntry {
		errs = append(errs, fmt.Errorf("hours must be between 0 and %d", MaxHoursPerEntry))
	}
	if e.Date.IsZero() {
		errs = append(errs, errors.New("date is required"))
	} else if e.Date.After(now) {
		errs = append(errs, errors.New("date must not be in the future"))
	}
	if strings.TrimSpace(e.Description) == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidEntry}, errs...)...)
}

// Action is a reviewer's verdict on an entry.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Review is what a reviewer submits for an entry.
type Review struct {
	Action          Action `json:"action"`
	RejectionReason string `json:"rejection_reason"`
	AdminNotes      string `json:"admin_notes"`
	Version         int    `json:"version"`
}

func (r Review) validate() error {
	switch r.Action {
	case ActionApprove:
		return nil
	case ActionReject:
		if strings.TrimSpace(r.RejectionReason) == "" {
			return fmt.Errorf("%w: rejection reason is required when rejecting", ErrInvalidEntry)
		}
		return nil
	}
	return fmt.Errorf("%w: action must be %q or %q", ErrInvalidEntry, ActionApprove, ActionReject)
}

// apply returns e with r recorded by reviewer at.
func (e Entry) apply(r Review, reviewer uuid.UUID, at time.Time) Entry {
	if r.Action == ActionApprove {
		e.Status = StatusApproved
	} else {
		e.Status = StatusRejected
		e.RejectionReason = r.RejectionReason
	}
	e.AdminNotes = r.AdminNotes
	e.ReviewedBy = &reviewer
	e.ReviewedAt = &at
	e.Version++
	return e
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	MemberID uuid.UUID
	Status   Status
}

func (f Filter) matches(e Entry) bool {
	if f.MemberID != uuid.Nil && e.MemberID != f.MemberID {
		return false
	}
	return f.Status == "" || e.Status == f.Status
}

// Summary totals a member's hours by review state.
type Summary struct {
	MemberID uuid.UUID `json:"member_id"`
	Approved float64   `json:"approved_hours"`
	Pending  float64   `json:"pending_hours"`
}

func summarize(memberID uuid.UUID, entries []Entry) Summary {
	s := Summary{MemberID: memberID}
	for _, e := range entries {
		switch e.Status {
		case StatusApproved:
			s.Approved += e.Hours
		case StatusPending:
			s.Pending += e.Hours
		}
	}
	return s
}
