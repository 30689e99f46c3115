// internal/review/navigation.go
package review

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"memberportal/internal/application"
	"memberportal/internal/navigation"
)

// NavigationSource exposes application ownership to the navigation resolver.
func NavigationSource(store application.Store) navigation.ResourceSource {
	return navigation.ResourceSourceFunc(func(ctx context.Context, id string) (navigation.Resource, error) {
		appID, err := uuid.Parse(id)
		if err != nil {
			return navigation.Resource{}, navigation.ErrResourceNotFound
		}
		app, err := store.Get(ctx, appID)
		if errors.Is(err, application.ErrNotFound) {
			return navigation.Resource{}, navigation.ErrResourceNotFound
		}
		if err != nil {
			return navigation.Resource{}, err
		}
		return navigation.Resource{OwnerID: app.ApplicantID}, nil
	})
}
