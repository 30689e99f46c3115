package review

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberportal/internal/navigation"
)

func TestNavigationSource(t *testing.T) {
	h := newHarness(t)
	app := h.draft(t)
	src := NavigationSource(h.store)

	res, err := src.Resource(context.Background(), app.ID.String())
	require.NoError(t, err)
	assert.Equal(t, h.applicant.ID, res.OwnerID)

	_, err = src.Resource(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, navigation.ErrResourceNotFound)

	_, err = src.Resource(context.Background(), "draft")
	require.ErrorIs(t, err, navigation.ErrResourceNotFound)
}
