package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/navigation"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	clock := func() time.Time { return fixedNow }
	svc := NewService(store, access.NewEvaluator(access.WithClock(clock)), zap.NewNop(), WithClock(clock))
	return svc, store
}

func principal(role access.Role, tier access.Tier, status access.MembershipStatus) *access.Principal {
	return &access.Principal{ID: uuid.New(), Role: role, Tier: tier, MembershipStatus: status}
}

func seed(t *testing.T, svc Service, e Event) Event {
	t.Helper()
	admin := principal(access.RoleAdmin, access.TierPlatinum, access.MembershipActive)
	created, err := svc.Create(context.Background(), admin, e)
	require.NoError(t, err)
	return created
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, principal(access.RoleMember, access.TierGold, access.MembershipActive), Event{Title: "Gala", Capacity: 10})
	reason, ok := access.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, access.ReasonRoleMismatch, reason)

	_, err = svc.Create(ctx, principal(access.RoleBoard, access.TierGold, access.MembershipActive), Event{Title: "Gala"})
	require.ErrorIs(t, err, ErrInvalidEvent)

	e := seed(t, svc, Event{Title: "Gala", Capacity: 10})
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, fixedNow, e.CreatedAt)
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	silver := principal(access.RoleMember, access.TierSilver, access.MembershipActive)

	tests := []struct {
		name   string
		event  Event
		p      *access.Principal
		reason access.Reason
	}{
		{
			name:   "anonymous",
			event:  Event{Title: "Open", Capacity: 5},
			reason: access.ReasonUnauthenticated,
		},
		{
			name:   "tier mismatch",
			event:  Event{Title: "Gold", Capacity: 5, AllowedTiers: access.TiersFrom(access.TierGold)},
			p:      silver,
			reason: access.ReasonTierMismatch,
		},
		{
			name:   "inactive membership",
			event:  Event{Title: "Members", Capacity: 5, RequiresActiveMembership: true},
			p:      principal(access.RoleMember, access.TierGold, access.MembershipInactive),
			reason: access.ReasonInactiveMembership,
		},
		{
			name:   "not open yet",
			event:  Event{Title: "Later", Capacity: 5, RegistrationOpens: fixedNow.Add(time.Hour)},
			p:      silver,
			reason: access.ReasonTooEarly,
		},
		{
			name:   "closed",
			event:  Event{Title: "Past", Capacity: 5, RegistrationCloses: fixedNow.Add(-time.Hour)},
			p:      silver,
			reason: access.ReasonTooLate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := seed(t, svc, tt.event)
			_, err := svc.Register(ctx, tt.p, e.ID)
			reason, ok := access.ReasonOf(err)
			require.True(t, ok, "expected a denial, got %v", err)
			assert.Equal(t, tt.reason, reason)
		})
	}

	t.Run("success then duplicate", func(t *testing.T) {
		e := seed(t, svc, Event{Title: "Meetup", Capacity: 2, RequiresActiveMembership: true,
			RegistrationOpens: fixedNow, RegistrationCloses: fixedNow.Add(time.Hour)})

		updated, err := svc.Register(ctx, silver, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Registered)
		assert.Equal(t, 2, updated.Version)

		_, err = svc.Register(ctx, silver, e.ID)
		require.ErrorIs(t, err, ErrAlreadyRegistered)
	})

	t.Run("full", func(t *testing.T) {
		e := seed(t, svc, Event{Title: "Tiny", Capacity: 1})
		_, err := svc.Register(ctx, silver, e.ID)
		require.NoError(t, err)

		_, err = svc.Register(ctx, principal(access.RoleMember, access.TierBronze, access.MembershipActive), e.ID)
		reason, _ := access.ReasonOf(err)
		assert.Equal(t, access.ReasonAtCapacity, reason)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := svc.Register(ctx, silver, uuid.New())
		require.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestRegisterNeverOverbooks(t *testing.T) {
	svc, store := newTestService(t)
	e := seed(t, svc, Event{Title: "Workshop", Capacity: 5})

	const members = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), principal(access.RoleMember, access.TierBronze, access.MembershipActive), e.ID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			reason, denied := access.ReasonOf(err)
			if !(denied && reason == access.ReasonAtCapacity) && !errors.Is(err, ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := store.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, stored.Registered, stored.Capacity)
	assert.Equal(t, successes, stored.Registered)

	regs, err := store.Registrations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Len(t, regs, successes)
}

func TestRegistrationsRequireOrganizer(t *testing.T) {
	svc, _ := newTestService(t)
	e := seed(t, svc, Event{Title: "Board dinner", Capacity: 3})

	_, err := svc.Registrations(context.Background(), principal(access.RoleMember, access.TierGold, access.MembershipActive), e.ID)
	require.ErrorIs(t, err, access.ErrDenied)

	regs, err := svc.Registrations(context.Background(), principal(access.RoleBoard, access.TierGold, access.MembershipActive), e.ID)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestNavigationSource(t *testing.T) {
	svc, store := newTestService(t)
	e := seed(t, svc, Event{Title: "Gala", Capacity: 3, AllowedTiers: access.TiersFrom(access.TierGold),
		RegistrationCloses: fixedNow.Add(time.Hour)})

	src := NavigationSource(store)
	res, err := src.Resource(context.Background(), e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, &access.Capacity{Current: 0, Total: 3}, res.Capacity)
	assert.Equal(t, fixedNow.Add(time.Hour), res.Window.NotAfter)
	assert.Equal(t, access.TiersFrom(access.TierGold), res.AllowedTiers)

	require.NotNil(t, res.RequiresActiveMembership)
	assert.False(t, *res.RequiresActiveMembership)

	_, err = src.Resource(context.Background(), "not-a-uuid")
	require.Error(t, err)
	_, err = src.Resource(context.Background(), uuid.NewString())
	require.Error(t, err)
}

func TestResolverAgreesWithRegister(t *testing.T) {
	svc, store := newTestService(t)
	community := seed(t, svc, Event{Title: "Open house", Capacity: 5})
	members := seed(t, svc, Event{Title: "AGM", Capacity: 5, RequiresActiveMembership: true})

	evaluator := access.NewEvaluator(access.WithClock(func() time.Time { return fixedNow }))
	resolver := navigation.NewResolver(navigation.DefaultRegistry(), evaluator, zap.NewNop(),
		navigation.WithSource(navigation.ResourceEvent, NavigationSource(store)))

	tests := []struct {
		name    string
		event   Event
		allowed bool
	}{
		{name: "open to lapsed members", event: community, allowed: true},
		{name: "active members only", event: members, allowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lapsed := principal(access.RoleMember, access.TierBronze, access.MembershipInactive)

			res, err := resolver.Resolve(context.Background(), lapsed,
				navigation.Request{Capability: "events.register", ResourceID: tt.event.ID.String()})
			require.NoError(t, err)

			_, regErr := svc.Register(context.Background(), lapsed, tt.event.ID)
			if tt.allowed {
				assert.Equal(t, navigation.KindProceed, res.Kind)
				assert.NoError(t, regErr)
				return
			}
			assert.Equal(t, navigation.KindUnauthorized, res.Kind)
			assert.Equal(t, access.ReasonInactiveMembership, res.Reason)
			reason, denied := access.ReasonOf(regErr)
			require.True(t, denied)
			assert.Equal(t, access.ReasonInactiveMembership, reason)
		})
	}
}
