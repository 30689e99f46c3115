// internal/volunteer/service.go
package volunteer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memberportal/internal/access"
)

var (
	// LogPolicy gates logging hours: an active member whose volunteer profile
	// has been approved.
	LogPolicy = access.Policy{
		RequiresActiveMembership:  true,
		RequiresVolunteerApproval: true,
	}
	// ReviewPolicy gates approving hours and reading other members' entries.
	ReviewPolicy = access.Policy{
		AllowedRoles:             []access.Role{access.RoleBoard, access.RoleAdmin},
		RequiresActiveMembership: true,
	}
	// ViewPolicy admits any signed-in principal to their own entries.
	ViewPolicy = access.Policy{}
)

// Service defines the volunteer hours operations.
type Service interface {
	Log(ctx context.Context, p *access.Principal, e Entry) (Entry, error)
	List(ctx context.Context, p *access.Principal, f Filter) ([]Entry, error)
	Summary(ctx context.Context, p *access.Principal, memberID uuid.UUID) (Summary, error)
	Review(ctx context.Context, p *access.Principal, id uuid.UUID, r Review) (Entry, error)
}

type service struct {
	store     Store
	evaluator *access.Evaluator
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(store Store, evaluator *access.Evaluator, log *zap.Logger, opts ...Option) Service {
	s := &service{
		store:     store,
		evaluator: evaluator,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) allow(p *access.Principal, policy access.Policy, rc *access.ResourceContext) error {
	return s.evaluator.Evaluate(p, policy, rc).Err()
}

func (s *service) Log(ctx context.Context, p *access.Principal, e Entry) (Entry, error) {
	if err := s.allow(p, LogPolicy, nil); err != nil {
		return Entry{}, err
	}
	now := s.now()
	if err := e.Validate(now); err != nil {
		return Entry{}, err
	}

	e.ID = uuid.New()
	e.MemberID = p.ID
	e.Status = StatusPending
	e.ReviewedBy, e.ReviewedAt = nil, nil
	e.RejectionReason, e.AdminNotes = "", ""
	e.Version = 1
	e.CreatedAt = now
	if err := s.store.Create(ctx, e); err != nil {
		return Entry{}, err
	}
	s.log.Info("volunteer hours logged",
		zap.String("entry_id", e.ID.String()),
		zap.String("member_id", p.ID.String()),
		zap.Float64("hours", e.Hours),
	)
	return e, nil
}

// List returns the caller's entries. Reviewers may list any member's entries, or
// all of them with a zero MemberID.
func (s *service) List(ctx context.Context, p *access.Principal, f Filter) ([]Entry, error) {
	if err := s.allow(p, ViewPolicy, nil); err != nil {
		return nil, err
	}
	if f.MemberID != p.ID && s.allow(p, ReviewPolicy, nil) != nil {
		f.MemberID = p.ID
	}
	return s.store.List(ctx, f)
}

func (s *service) Summary(ctx context.Context, p *access.Principal, memberID uuid.UUID) (Summary, error) {
	owner := access.Policy{RequiresOwnership: true}
	if err := s.allow(p, owner, &access.ResourceContext{OwnerID: memberID}); err != nil {
		return Summary{}, err
	}
	entries, err := s.store.List(ctx, Filter{MemberID: memberID})
	if err != nil {
		return Summary{}, err
	}
	return summarize(memberID, entries), nil
}

// Review approves or rejects a pending entry. A zero version means the version
// just read.
func (s *service) Review(ctx context.Context, p *access.Principal, id uuid.UUID, r Review) (Entry, error) {
	if err := s.allow(p, ReviewPolicy, nil); err != nil {
		return Entry{}, err
	}
	if err := r.validate(); err != nil {
		return Entry{}, err
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if e.Status != StatusPending {
		return Entry{}, ErrAlreadyReviewed
	}
	expected := r.Version
	if expected == 0 {
		expected = e.Version
	}
	if e.Version != expected {
		return Entry{}, ErrConflict
	}

	reviewed := e.apply(r, p.ID, s.now())
	if err := s.store.Update(ctx, reviewed, expected); err != nil {
		return Entry{}, fmt.Errorf("review %s: %w", id, err)
	}
	s.log.Info("volunteer hours reviewed",
		zap.String("entry_id", id.String()),
		zap.String("status", string(reviewed.Status)),
		zap.String("reviewer_id", p.ID.String()),
	)
	return reviewed, nil
}
