// internal/events/service.go
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"memberportal/internal/access"
)

// registerAttempts bounds how often a registration re-reads a contended event.
const registerAttempts = 3

var (
	// OrganizerPolicy gates creating events and listing attendees.
	OrganizerPolicy = access.Policy{
		AllowedRoles:             []access.Role{access.RoleBoard, access.RoleAdmin},
		RequiresActiveMembership: true,
	}
	// BrowsePolicy admits any signed-in principal.
	BrowsePolicy = access.Policy{}
)

// Service defines the event registration operations.
type Service interface {
	Create(ctx context.Context, p *access.Principal, e Event) (Event, error)
	Get(ctx context.Context, p *access.Principal, id uuid.UUID) (Event, error)
	List(ctx context.Context, p *access.Principal) ([]Event, error)
	Register(ctx context.Context, p *access.Principal, eventID uuid.UUID) (Event, error)
	Registrations(ctx context.Context, p *access.Principal, eventID uuid.UUID) ([]Registration, error)
}

type service struct {
	store     Store
	evaluator *access.Evaluator
	log       *zap.Logger
	tracer    trace.Tracer
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
		tracer:    otel.Tracer("memberportal/events"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) allow(p *access.Principal, policy access.Policy) error {
	return s.evaluator.Evaluate(p, policy, nil).Err()
}

func (s *service) Create(ctx context.Context, p *access.Principal, e Event) (Event, error) {
	if err := s.allow(p, OrganizerPolicy); err != nil {
		return Event{}, err
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}

	e.ID = uuid.New()
	e.Registered = 0
	e.Version = 1
	e.CreatedAt = s.now()
	if err := s.store.Create(ctx, e); err != nil {
		return Event{}, err
	}
	s.log.Info("event created", zap.String("event_id", e.ID.String()), zap.String("title", e.Title))
	return e, nil
}

func (s *service) Get(ctx context.Context, p *access.Principal, id uuid.UUID) (Event, error) {
	if err := s.allow(p, BrowsePolicy); err != nil {
		return Event{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *service) List(ctx context.Context, p *access.Principal) ([]Event, error) {
	if err := s.allow(p, BrowsePolicy); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *service) Registrations(ctx context.Context, p *access.Principal, eventID uuid.UUID) ([]Registration, error) {
	if err := s.allow(p, OrganizerPolicy); err != nil {
		return nil, err
	}
	return s.store.Registrations(ctx, eventID)
}

// Register evaluates the event's policy against p and takes a seat. A lost race
// re-reads the event and evaluates again, so the last seat yields AtCapacity to
// everyone but its winner.
func (s *service) Register(ctx context.Context, p *access.Principal, eventID uuid.UUID) (Event, error) {
	ctx, span := s.tracer.Start(ctx, "events.register",
		trace.WithAttributes(attribute.String("event.id", eventID.String())))
	defer span.End()

	if p == nil {
		return Event{}, access.Deny(access.ReasonUnauthenticated).Err()
	}

	for attempt := 1; ; attempt++ {
		e, err := s.store.Get(ctx, eventID)
		if err != nil {
			return Event{}, err
		}

		registered, err := s.store.IsRegistered(ctx, eventID, p.ID)
		if err != nil {
			return Event{}, err
		}
		if registered {
			return Event{}, ErrAlreadyRegistered
		}

		if err := s.evaluator.Evaluate(p, e.Policy(), nil).Err(); err != nil {
			span.SetAttributes(attribute.String("denied", err.Error()))
			return Event{}, err
		}

		updated, err := s.store.Register(ctx, eventID, p.ID, e.Version, s.now())
		if errors.Is(err, ErrConflict) && attempt < registerAttempts {
			s.log.Debug("registration contended, retrying",
				zap.String("event_id", eventID.String()), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrAlreadyRegistered) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "register failed")
			}
			return Event{}, fmt.Errorf("register for %s: %w", eventID, err)
		}

		s.log.Info("member registered for event",
			zap.String("event_id", eventID.String()),
			zap.String("member_id", p.ID.String()),
			zap.Int("registered", updated.Registered),
		)
		return updated, nil
	}
}
