package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"memberportal/internal/access"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(store Store) *Machine {
	return NewMachine(store, WithNow(func() time.Time { return fixedNow }))
}

func completeDetails() Details {
	return Details{
		Type:             "full",
		PersonalInfo:     &PersonalInfo{Location: "Lisbon", Occupation: "Translator"},
		ProfessionalInfo: &ProfessionalInfo{CurrentRole: "Senior translator", YearsOfExperience: 8},
		References: []Reference{
			{Name: "Ana", Email: "ana@example.com"},
			{Name: "Ben", Email: "ben@example.com"},
		},
	}
}

func withDocument(app *Application) error {
	app.Documents = append(app.Documents, Document{Reference: "doc-1", Name: "cv.pdf", MimeType: "application/pdf"})
	return nil
}

type fixture struct {
	store    *MemoryStore
	machine  *Machine
	owner    Actor
	reviewer Actor
}

func newFixture() *fixture {
	store := NewMemoryStore()
	return &fixture{
		store:    store,
		machine:  newTestMachine(store),
		owner:    Actor{ID: uuid.New(), Role: access.RoleMember},
		reviewer: Actor{ID: uuid.New(), Role: access.RoleBoard},
	}
}

func (f *fixture) draft(t *testing.T) Application {
	t.Helper()
	app, err := f.machine.Create(context.Background(), f.owner, completeDetails())
	require.NoError(t, err)
	app, err = f.machine.Amend(context.Background(), app, f.owner,
		Amendment{Event: EventDocumentUploaded, By: OwnerOnly, Apply: withDocument}, app.Version)
	require.NoError(t, err)
	return app
}

func (f *fixture) move(t *testing.T, app Application, to Status, actor Actor, p Payload) Application {
	t.Helper()
	next, err := f.machine.Transition(context.Background(), app, to, actor, p, app.Version)
	require.NoError(t, err)
	return next
}

func (f *fixture) underReview(t *testing.T) Application {
	app := f.move(t, f.draft(t), StatusSubmitted, f.owner, Payload{})
	return f.move(t, app, StatusUnderReview, f.reviewer, Payload{})
}

func approval() Payload {
	return Payload{
		Decision:  DecisionApproved,
		Comments:  "Strong candidate",
		Checklist: Checklist{DocumentsReviewed: true, CredentialsVerified: true},
	}
}

func TestCreate(t *testing.T) {
	f := newFixture()
	app, err := f.machine.Create(context.Background(), f.owner, completeDetails())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, app.Status)
	assert.Equal(t, 1, app.Version)
	assert.Equal(t, EventCreated, app.LastEvent)
	assert.Equal(t, f.owner.ID, app.ApplicantID)
	assert.Equal(t, fixedNow, app.CreatedAt)

	_, err = f.machine.Create(context.Background(), f.owner, completeDetails())
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSubmit(t *testing.T) {
	f := newFixture()
	app := f.draft(t)

	next := f.move(t, app, StatusSubmitted, f.owner, Payload{})
	assert.Equal(t, StatusSubmitted, next.Status)
	assert.Equal(t, app.Version+1, next.Version)
	assert.Equal(t, fixedNow, next.SubmittedAt)
	assert.Equal(t, EventSubmitted, next.LastEvent)
	assert.Equal(t, f.owner.ID, next.UpdatedBy)
	assert.Equal(t, StatusDraft, app.Status, "input must not change")
}

func TestSubmitIncomplete(t *testing.T) {
	f := newFixture()
	app, err := f.machine.Create(context.Background(), f.owner, Details{
		PersonalInfo:     &PersonalInfo{Location: "Porto", Occupation: "Editor"},
		ProfessionalInfo: &ProfessionalInfo{CurrentRole: "Editor"},
		References:       []Reference{{Name: "Ana", Email: "ana@example.com"}},
	})
	require.NoError(t, err)

	_, err = f.machine.Transition(context.Background(), app, StatusSubmitted, f.owner, Payload{}, app.Version)
	require.ErrorIs(t, err, ErrIncompleteApplication)

	var incomplete *IncompleteApplicationError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"reference_2", "documents"}, incomplete.MissingFields)

	stored, err := f.store.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
	assert.Equal(t, app.Version, stored.Version)
}

func TestCheckComplete(t *testing.T) {
	base := Application{
		PersonalInfo:     &PersonalInfo{Location: "Porto", Occupation: "Editor"},
		ProfessionalInfo: &ProfessionalInfo{CurrentRole: "Editor"},
		References: []Reference{
			{Name: "Ana", Email: "ana@example.com"},
			{Name: "Ben", Email: "ben@example.com"},
		},
		Documents: []Document{{Reference: "d"}},
	}
	require.NoError(t, CheckComplete(base))

	tests := []struct {
		name    string
		mutate  func(*Application)
		missing []string
	}{
		{"no personal info", func(a *Application) { a.PersonalInfo = nil }, []string{"personal_info"}},
		{"no professional info", func(a *Application) { a.ProfessionalInfo = nil }, []string{"professional_info"}},
		{"no references", func(a *Application) { a.References = nil }, []string{"reference_1", "reference_2"}},
		{"three references", func(a *Application) { a.References = append(a.References, Reference{Name: "C", Email: "c@example.com"}) }, []string{"references (exactly 2 required)"}},
		{"duplicate email", func(a *Application) { a.References[1].Email = "ANA@example.com" }, []string{"reference_2.email (must differ from reference_1)"}},
		{"blank reference email", func(a *Application) { a.References[0].Email = " " }, []string{"reference_1"}},
		{"no documents", func(a *Application) { a.Documents = nil }, []string{"documents"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := base.Clone()
			tt.mutate(&app)
			var incomplete *IncompleteApplicationError
			require.True(t, errors.As(CheckComplete(app), &incomplete))
			assert.Equal(t, tt.missing, incomplete.MissingFields)
		})
	}
}

func TestTransitionRules(t *testing.T) {
	f := newFixture()
	stranger := Actor{ID: uuid.New(), Role: access.RoleMember}

	t.Run("reviewer cannot submit", func(t *testing.T) {
		app := f.draft(t)
		_, err := f.machine.Transition(context.Background(), app, StatusSubmitted, f.reviewer, Payload{}, app.Version)
		require.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("draft cannot be approved", func(t *testing.T) {
		f := newFixture()
		app := f.draft(t)
		_, err := f.machine.Transition(context.Background(), app, StatusApproved, f.reviewer, approval(), app.Version)
		var invalid *InvalidTransitionError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, StatusDraft, invalid.From)
		assert.Equal(t, StatusApproved, invalid.To)
	})

	t.Run("owner cannot start review", func(t *testing.T) {
		f := newFixture()
		app := f.move(t, f.draft(t), StatusSubmitted, f.owner, Payload{})
		_, err := f.machine.Transition(context.Background(), app, StatusUnderReview, f.owner, Payload{}, app.Version)
		require.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("stranger cannot withdraw", func(t *testing.T) {
		f := newFixture()
		app := f.move(t, f.draft(t), StatusSubmitted, f.owner, Payload{})
		_, err := f.machine.Transition(context.Background(), app, StatusWithdrawn, stranger, Payload{}, app.Version)
		require.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("reviewer cannot withdraw", func(t *testing.T) {
		f := newFixture()
		app := f.underReview(t)
		_, err := f.machine.Transition(context.Background(), app, StatusWithdrawn, f.reviewer, Payload{}, app.Version)
		require.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("draft cannot be withdrawn", func(t *testing.T) {
		f := newFixture()
		app := f.draft(t)
		_, err := f.machine.Transition(context.Background(), app, StatusWithdrawn, f.owner, Payload{}, app.Version)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestReviewStart(t *testing.T) {
	f := newFixture()
	app := f.underReview(t)

	assert.Equal(t, StatusUnderReview, app.Status)
	assert.Equal(t, uuid.NullUUID{UUID: f.reviewer.ID, Valid: true}, app.ReviewerID)
	assert.Equal(t, fixedNow, app.ReviewedAt)
}

func TestApprove(t *testing.T) {
	f := newFixture()
	app := f.underReview(t)

	t.Run("requires comments", func(t *testing.T) {
		p := approval()
		p.Comments = "  "
		_, err := f.machine.Transition(context.Background(), app, StatusApproved, f.reviewer, p, app.Version)
		require.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("requires checklist", func(t *testing.T) {
		p := approval()
		p.Checklist.CredentialsVerified = false
		_, err := f.machine.Transition(context.Background(), app, StatusApproved, f.reviewer, p, app.Version)
		var invalid *ValidationError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "checklist", invalid.Field)
	})

	t.Run("requires matching decision", func(t *testing.T) {
		p := approval()
		p.Decision = DecisionRejected
		_, err := f.machine.Transition(context.Background(), app, StatusApproved, f.reviewer, p, app.Version)
		require.ErrorIs(t, err, ErrInvalidPayload)
	})

	approved := f.move(t, app, StatusApproved, f.reviewer, approval())
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, DecisionApproved, approved.Decision)
	assert.Equal(t, "Strong candidate", approved.ReviewComments)
	assert.Equal(t, fixedNow, approved.ApprovedAt)

	_, err := f.machine.Transition(context.Background(), approved, StatusWithdrawn, f.owner, Payload{}, approved.Version)
	require.ErrorIs(t, err, ErrApplicationFinalized)
}

func TestReject(t *testing.T) {
	f := newFixture()
	app := f.underReview(t)

	rejected := f.move(t, app, StatusRejected, f.reviewer, Payload{Decision: DecisionRejected, Comments: "Insufficient experience"})
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.True(t, rejected.ApprovedAt.IsZero())
	assert.Equal(t, DecisionRejected, rejected.Decision)
}

func TestDocumentRequestRoundTrip(t *testing.T) {
	f := newFixture()
	app := f.underReview(t)

	_, err := f.machine.Transition(context.Background(), app, StatusPendingDocuments, f.reviewer, Payload{}, app.Version)
	require.ErrorIs(t, err, ErrInvalidPayload)

	pending := f.move(t, app, StatusPendingDocuments, f.reviewer, Payload{RequestedDocuments: []string{"Diploma", " "}})
	assert.Equal(t, []string{"Diploma"}, pending.RequestedDocuments)
	assert.Equal(t, DecisionNeedsMoreInfo, pending.Decision)

	_, err = f.machine.Transition(context.Background(), pending, StatusUnderReview, f.owner, Payload{}, pending.Version)
	require.ErrorIs(t, err, ErrInvalidPayload)

	resumed := f.move(t, pending, StatusUnderReview, f.owner, Payload{Documents: []Document{{Reference: "doc-2", Name: "diploma.pdf"}}})
	assert.Equal(t, EventDocumentsProvided, resumed.LastEvent)
	assert.Len(t, resumed.Documents, 2)
	assert.Equal(t, fixedNow, resumed.ReviewedAt)

	forced := f.move(t, f.move(t, resumed, StatusPendingDocuments, f.reviewer, Payload{RequestedDocuments: []string{"ID"}}),
		StatusUnderReview, f.reviewer, Payload{})
	assert.Equal(t, EventReviewResumed, forced.LastEvent)
}

func TestStaleVersion(t *testing.T) {
	f := newFixture()
	app := f.draft(t)

	_, err := f.machine.Transition(context.Background(), app, StatusSubmitted, f.owner, Payload{}, app.Version-1)
	require.ErrorIs(t, err, ErrConcurrentModification)

	stale := app
	f.move(t, app, StatusSubmitted, f.owner, Payload{})
	_, err = f.machine.Transition(context.Background(), stale, StatusSubmitted, f.owner, Payload{}, stale.Version)
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestConcurrentTransitionsCommitOnce(t *testing.T) {
	f := newFixture()
	app := f.move(t, f.draft(t), StatusSubmitted, f.owner, Payload{})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reviewer := Actor{ID: uuid.New(), Role: access.RoleAdmin}
			_, err := f.machine.Transition(context.Background(), app, StatusUnderReview, reviewer, Payload{}, app.Version)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConcurrentModification):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	stored, err := f.store.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.Version+1, stored.Version)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) Save(ctx context.Context, app Application, expectedVersion int) (Application, error) {
	if expectedVersion > 0 {
		return Application{}, s.err
	}
	return s.MemoryStore.Save(ctx, app, expectedVersion)
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	store := failingStore{MemoryStore: NewMemoryStore(), err: errors.New("connection reset")}
	m := newTestMachine(store)
	owner := Actor{ID: uuid.New(), Role: access.RoleMember}

	app, err := m.Create(context.Background(), owner, completeDetails())
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), app, StatusWithdrawn, owner, Payload{}, app.Version)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Amend(context.Background(), app, owner, Amendment{Event: EventDocumentUploaded, By: OwnerOnly, Apply: withDocument}, app.Version)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, app.Documents)

	stored, err := store.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, app, stored)
}

func TestAmendment(t *testing.T) {
	f := newFixture()
	app := f.draft(t)

	edited, err := f.machine.Amend(context.Background(), app, f.owner, EditDetails(Details{Type: "associate"}), app.Version)
	require.NoError(t, err)
	assert.Equal(t, "associate", edited.Type)
	assert.Equal(t, EventDetailsUpdated, edited.LastEvent)
	assert.Equal(t, app.Version+1, edited.Version)
	assert.Equal(t, StatusDraft, edited.Status)

	submitted := f.move(t, edited, StatusSubmitted, f.owner, Payload{})
	_, err = f.machine.Amend(context.Background(), submitted, f.owner, EditDetails(Details{Type: "full"}), submitted.Version)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.machine.Amend(context.Background(), submitted, f.reviewer, Amendment{Event: EventDocumentUploaded, By: OwnerOnly, Apply: withDocument}, submitted.Version)
	require.ErrorIs(t, err, ErrUnauthorizedActor)
}

func TestHistoryRecordsEveryCommit(t *testing.T) {
	f := newFixture()
	app := f.underReview(t)

	changes, err := f.store.History(context.Background(), app.ID)
	require.NoError(t, err)

	var events []Event
	for i, c := range changes {
		assert.Equal(t, i+1, c.Version)
		events = append(events, c.Event)
	}
	assert.Equal(t, []Event{EventCreated, EventDocumentUploaded, EventSubmitted, EventReviewStarted}, events)
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []Status{StatusSubmitted}, Targets(StatusDraft))
	assert.Equal(t, []Status{StatusUnderReview, StatusWithdrawn}, Targets(StatusSubmitted))
	for _, s := range []Status{StatusApproved, StatusRejected, StatusWithdrawn} {
		assert.Empty(t, Targets(s), s)
	}
}

func applicationGen() *rapid.Generator[Application] {
	return rapid.Custom(func(t *rapid.T) Application {
		app := Application{
			ID:          uuid.New(),
			ApplicantID: uuid.New(),
			Status:      rapid.SampledFrom(Statuses).Draw(t, "status"),
			Version:     rapid.IntRange(1, 50).Draw(t, "version"),
		}
		if rapid.Bool().Draw(t, "personal") {
			app.PersonalInfo = &PersonalInfo{Location: "x", Occupation: "y"}
		}
		if rapid.Bool().Draw(t, "professional") {
			app.ProfessionalInfo = &ProfessionalInfo{CurrentRole: "z"}
		}
		refs := rapid.IntRange(0, 3).Draw(t, "references")
		for i := 0; i < refs; i++ {
			app.References = append(app.References, Reference{Name: "r", Email: rapid.SampledFrom([]string{"a@x.org", "b@x.org", ""}).Draw(t, "email")})
		}
		if rapid.Bool().Draw(t, "document") {
			app.Documents = []Document{{Reference: "d"}}
		}
		return app
	})
}

func payloadGen() *rapid.Generator[Payload] {
	return rapid.Custom(func(t *rapid.T) Payload {
		return Payload{
			Decision: rapid.SampledFrom([]Decision{"", DecisionApproved, DecisionRejected, DecisionNeedsMoreInfo}).Draw(t, "decision"),
			Comments: rapid.SampledFrom([]string{"", "ok"}).Draw(t, "comments"),
			Checklist: Checklist{
				DocumentsReviewed:   rapid.Bool().Draw(t, "reviewed"),
				CredentialsVerified: rapid.Bool().Draw(t, "verified"),
			},
			RequestedDocuments: rapid.SliceOfN(rapid.SampledFrom([]string{"", "ID"}), 0, 2).Draw(t, "requested"),
		}
	})
}

func actorFor(t *rapid.T, app Application) Actor {
	return rapid.SampledFrom([]Actor{
		{ID: app.ApplicantID, Role: access.RoleMember},
		{ID: uuid.New(), Role: access.RoleMember},
		{ID: uuid.New(), Role: access.RoleBoard},
		{ID: uuid.New(), Role: access.RoleAdmin},
	}).Draw(t, "actor")
}

func TestPlanTerminalIsFinal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		app := applicationGen().Draw(t, "app")
		if !app.Status.Terminal() {
			t.Skip("non-terminal")
		}
		to := rapid.SampledFrom(Statuses).Draw(t, "to")
		_, _, err := Plan(app, to, actorFor(t, app), payloadGen().Draw(t, "payload"), app.Version, fixedNow)
		require.ErrorIs(t, err, ErrApplicationFinalized)
	})
}

func TestPlanSuccessBumpsVersionOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		app := applicationGen().Draw(t, "app")
		before := app.Clone()
		to := rapid.SampledFrom(Statuses).Draw(t, "to")

		next, event, err := Plan(app, to, actorFor(t, app), payloadGen().Draw(t, "payload"), app.Version, fixedNow)
		require.Equal(t, before, app)
		if err != nil {
			return
		}
		require.Equal(t, app.Version+1, next.Version)
		require.Equal(t, to, next.Status)
		require.Equal(t, event, next.LastEvent)
		require.Contains(t, Targets(app.Status), to)
	})
}

func TestPlanSubmitRequiresCompleteness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		app := applicationGen().Draw(t, "app")
		app.Status = StatusDraft
		owner := Actor{ID: app.ApplicantID, Role: access.RoleMember}

		_, _, err := Plan(app, StatusSubmitted, owner, Payload{}, app.Version, fixedNow)
		require.Equal(t, CheckComplete(app) == nil, err == nil)
	})
}
