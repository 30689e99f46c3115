// internal/events/navigation.go
package events

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"memberportal/internal/navigation"
)

// NavigationSource lets the navigation resolver evaluate an event with the same
// policy Register applies.
func NavigationSource(store Store) navigation.ResourceSource {
	return navigation.ResourceSourceFunc(func(ctx context.Context, id string) (navigation.Resource, error) {
		eventID, err := uuid.Parse(id)
		if err != nil {
			return navigation.Resource{}, navigation.ErrResourceNotFound
		}
		e, err := store.Get(ctx, eventID)
		if errors.Is(err, ErrEventNotFound) {
			return navigation.Resource{}, navigation.ErrResourceNotFound
		}
		if err != nil {
			return navigation.Resource{}, err
		}
		policy := e.Policy()
		return navigation.Resource{
			Capacity:                 policy.Capacity,
			Window:                   policy.Window,
			AllowedTiers:             policy.AllowedTiers,
			RequiresActiveMembership: &policy.RequiresActiveMembership,
		}, nil
	})
}
