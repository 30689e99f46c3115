// internal/events/domain.go
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"memberportal/internal/access"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrAlreadyRegistered = errors.New("member is already registered for this event")
	ErrConflict          = errors.New("event was modified concurrently")
	ErrInvalidEvent      = errors.New("invalid event")
)

// Event is a members' event with limited seats and a registration window.
type Event struct {
	ID                       uuid.UUID     `json:"id"`
	Title                    string        `json:"title"`
	Description              string        `json:"description,omitempty"`
	StartsAt                 time.Time     `json:"starts_at"`
	AllowedTiers             []access.Tier `json:"allowed_tiers,omitempty"`
	RequiresActiveMembership bool          `json:"requires_active_membership"`
	RegistrationOpens        time.Time     `json:"registration_opens,omitempty"`
	RegistrationCloses       time.Time     `json:"registration_closes,omitempty"`
	Capacity                 int           `json:"capacity"`
	Registered               int           `json:"registered"`
	Version                  int           `json:"version"`
	CreatedAt                time.Time     `json:"created_at"`
}

// Policy is the descriptor registration is evaluated against.
func (e Event) Policy() access.Policy {
	p := access.Policy{
		AllowedTiers:             e.AllowedTiers,
		RequiresActiveMembership: e.RequiresActiveMembership,
		Capacity:                 e.seats(),
	}
	if !e.RegistrationOpens.IsZero() || !e.RegistrationCloses.IsZero() {
		p.Window = &access.Window{NotBefore: e.RegistrationOpens, NotAfter: e.RegistrationCloses}
	}
	return p
}

func (e Event) seats() *access.Capacity {
	return &access.Capacity{Current: e.Registered, Total: e.Capacity}
}

// Validate checks the fields an organizer must supply.
func (e Event) Validate() error {
	switch {
	case e.Title == "":
		return errors.Join(ErrInvalidEvent, errors.New("title is required"))
	case e.Capacity <= 0:
		return errors.Join(ErrInvalidEvent, errors.New("capacity must be positive"))
	case !e.RegistrationOpens.IsZero() && !e.RegistrationCloses.IsZero() && e.RegistrationCloses.Before(e.RegistrationOpens):
		return errors.Join(ErrInvalidEvent, errors.New("registration closes before it opens"))
	}
	for _, t := range e.AllowedTiers {
		if t.Rank() == 0 {
			return errors.Join(ErrInvalidEvent, errors.New("unknown tier "+string(t)))
		}
	}
	return nil
}

// Registration records a member's seat.
type Registration struct {
	EventID      uuid.UUID `json:"event_id" db:"event_id"`
	MemberID     uuid.UUID `json:"member_id" db:"member_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}
