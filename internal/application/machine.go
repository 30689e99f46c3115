// internal/application/machine.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"memberportal/internal/access"
)

// Actor is the principal triggering a change, reduced to what eligibility needs.
type Actor struct {
	ID   uuid.UUID
	Role access.Role
}

// ActorOf reduces a principal to an actor.
func ActorOf(p access.Principal) Actor {
	return Actor{ID: p.ID, Role: p.Role}
}

// Eligibility names who may trigger a change.
type Eligibility int

const (
	OwnerOnly Eligibility = iota + 1
	ReviewerOnly
	OwnerOrReviewer
)

// Permits reports whether actor may act on app under e.
func (e Eligibility) Permits(app Application, actor Actor) bool {
	owner := actor.ID != uuid.Nil && actor.ID == app.ApplicantID
	reviewer := actor.Role.Elevated()
	switch e {
	case OwnerOnly:
		return owner
	case ReviewerOnly:
		return reviewer
	case OwnerOrReviewer:
		return owner || reviewer
	}
	return false
}

// Payload carries the inputs a transition may require.
type Payload struct {
	Decision           Decision
	Comments           string
	Checklist          Checklist
	RequestedDocuments []string
	Documents          []Document
}

type edge struct {
	from Status
	to   Status
}

type rule struct {
	event    Event
	by       Eligibility
	validate func(app Application, actor Actor, p Payload) error
	apply    func(app *Application, actor Actor, p Payload, now time.Time)
}

var transitions = map[edge]rule{
	{StatusDraft, StatusSubmitted}: {
		event: EventSubmitted,
		by:    OwnerOnly,
		validate: func(app Application, _ Actor, _ Payload) error {
			return CheckComplete(app)
		},
		apply: func(app *Application, _ Actor, _ Payload, now time.Time) {
			app.SubmittedAt = now
		},
	},
	{StatusSubmitted, StatusUnderReview}: {
		event: EventReviewStarted,
		by:    ReviewerOnly,
		apply: func(app *Application, actor Actor, _ Payload, now time.Time) {
			assignReviewer(app, actor)
			if app.ReviewedAt.IsZero() {
				app.ReviewedAt = now
			}
		},
	},
	{StatusUnderReview, StatusPendingDocuments}: {
		event: EventDocumentsRequested,
		by:    ReviewerOnly,
		validate: func(_ Application, _ Actor, p Payload) error {
			return requireDescriptions(p.RequestedDocuments)
		},
		apply: func(app *Application, actor Actor, p Payload, _ time.Time) {
			assignReviewer(app, actor)
			app.RequestedDocuments = append(app.RequestedDocuments, trimAll(p.RequestedDocuments)...)
			app.Decision = DecisionNeedsMoreInfo
			if strings.TrimSpace(p.Comments) != "" {
				app.ReviewComments = p.Comments
			}
		},
	},
	{StatusPendingDocuments, StatusUnderReview}: {
		event: EventDocumentsProvided,
		by:    OwnerOrReviewer,
		validate: func(app Application, actor Actor, p Payload) error {
			// Owners resume review only by providing something new; reviewers may force it.
			if !actor.Role.Elevated() && len(p.Documents) == 0 {
				return &ValidationError{Field: "documents", Reason: "a new document upload is required"}
			}
			return nil
		},
		apply: func(app *Application, _ Actor, p Payload, _ time.Time) {
			app.Documents = append(app.Documents, p.Documents...)
		},
	},
	{StatusSubmitted, StatusWithdrawn}:        withdrawRule,
	{StatusUnderReview, StatusWithdrawn}:      withdrawRule,
	{StatusPendingDocuments, StatusWithdrawn}: withdrawRule,
	{StatusUnderReview, StatusApproved}:       approveRule,
	{StatusPendingDocuments, StatusApproved}:  approveRule,
	{StatusUnderReview, StatusRejected}:       rejectRule,
	{StatusPendingDocuments, StatusRejected}:  rejectRule,
}

var withdrawRule = rule{
	event: EventWithdrawn,
	by:    OwnerOnly,
}

var approveRule = rule{
	event: EventApproved,
	by:    ReviewerOnly,
	validate: func(_ Application, _ Actor, p Payload) error {
		if p.Decision != DecisionApproved {
			return &ValidationError{Field: "decision", Reason: "must be approved"}
		}
		if err := requireComments(p.Comments); err != nil {
			return err
		}
		if !p.Checklist.Complete() {
			return &ValidationError{Field: "checklist", Reason: "documents must be reviewed and credentials verified"}
		}
		return nil
	},
	apply: func(app *Application, actor Actor, p Payload, now time.Time) {
		assignReviewer(app, actor)
		app.Decision = DecisionApproved
		app.ReviewComments = p.Comments
		app.ApprovedAt = now
	},
}

var rejectRule = rule{
	event: EventRejected,
	by:    ReviewerOnly,
	validate: func(_ Application, _ Actor, p Payload) error {
		if p.Decision != DecisionRejected {
			return &ValidationError{Field: "decision", Reason: "must be rejected"}
		}
		return requireComments(p.Comments)
	},
	apply: func(app *Application, actor Actor, p Payload, _ time.Time) {
		assignReviewer(app, actor)
		app.Decision = DecisionRejected
		app.ReviewComments = p.Comments
	},
}

func assignReviewer(app *Application, actor Actor) {
	if !app.ReviewerID.Valid {
		app.ReviewerID = uuid.NullUUID{UUID: actor.ID, Valid: true}
	}
}

func requireComments(comments string) error {
	if strings.TrimSpace(comments) == "" {
		return &ValidationError{Field: "comments", Reason: "must not be empty"}
	}
	return nil
}

func requireDescriptions(descriptions []string) error {
	if len(trimAll(descriptions)) == 0 {
		return &ValidationError{Field: "requested_documents", Reason: "at least one description is required"}
	}
	return nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CheckComplete validates the submission requirements and names every missing field.
func CheckComplete(app Application) error {
	var missing []string
	if !app.PersonalInfo.Present() {
		missing = append(missing, "personal_info")
	}
	if !app.ProfessionalInfo.Present() {
		missing = append(missing, "professional_info")
	}

	switch n := len(app.References); {
	case n > 2:
		missing = append(missing, "references (exactly 2 required)")
	default:
		for i := 0; i < 2; i++ {
			if i >= n || strings.TrimSpace(app.References[i].Name) == "" || strings.TrimSpace(app.References[i].Email) == "" {
				missing = append(missing, fmt.Sprintf("reference_%d", i+1))
			}
		}
		if n == 2 && strings.TrimSpace(app.References[1].Email) != "" &&
			strings.EqualFold(strings.TrimSpace(app.References[0].Email), strings.TrimSpace(app.References[1].Email)) {
			missing = append(missing, "reference_2.email (must differ from reference_1)")
		}
	}

	if len(app.Documents) == 0 {
		missing = append(missing, "documents")
	}

	if len(missing) > 0 {
		return &IncompleteApplicationError{MissingFields: missing}
	}
	return nil
}

// Targets lists the statuses reachable from from, in table order of Statuses.
func Targets(from Status) []Status {
	var out []Status
	for _, to := range Statuses {
		if _, ok := transitions[edge{from, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// Plan computes the application that a transition would commit without persisting it.
// app is never modified.
func Plan(app Application, to Status, actor Actor, payload Payload, expectedVersion int, now time.Time) (Application, Event, error) {
	if app.Status.Terminal() {
		return Application{}, "", ErrApplicationFinalized
	}
	if expectedVersion != app.Version {
		return Application{}, "", ErrConcurrentModification
	}

	r, ok := transitions[edge{app.Status, to}]
	if !ok {
		return Application{}, "", &InvalidTransitionError{From: app.Status, To: to}
	}
	if !r.by.Permits(app, actor) {
		return Application{}, "", ErrUnauthorizedActor
	}
	if r.validate != nil {
		if err := r.validate(app, actor, payload); err != nil {
			return Application{}, "", err
		}
	}

	next := app.Clone()
	next.Status = to
	if r.apply != nil {
		r.apply(&next, actor, payload, now)
	}
	event := r.event
	if event == EventDocumentsProvided && len(payload.Documents) == 0 {
		event = EventReviewResumed
	}
	stamp(&next, event, actor, now)
	return next, event, nil
}

// Amendment is a change that keeps the status, such as recording a decision or
// attaching interview metadata.
type Amendment struct {
	Event Event
	By    Eligibility
	// In restricts the statuses the amendment applies in; empty means any non-terminal status.
	In    []Status
	Apply func(app *Application) error
}

// PlanAmendment computes the application an amendment would commit. app is never modified.
func PlanAmendment(app Application, actor Actor, a Amendment, expectedVersion int, now time.Time) (Application, error) {
	if app.Status.Terminal() {
		return Application{}, ErrApplicationFinalized
	}
	if expectedVersion != app.Version {
		return Application{}, ErrConcurrentModification
	}
	if len(a.In) > 0 && !containsStatus(a.In, app.Status) {
		return Application{}, &InvalidTransitionError{From: app.Status, To: app.Status}
	}
	if !a.By.Permits(app, actor) {
		return Application{}, ErrUnauthorizedActor
	}

	next := app.Clone()
	if a.Apply != nil {
		if err := a.Apply(&next); err != nil {
			return Application{}, err
		}
	}
	next.Status = app.Status
	stamp(&next, a.Event, actor, now)
	return next, nil
}

func containsStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func stamp(app *Application, event Event, actor Actor, now time.Time) {
	app.Version++
	app.LastEvent = event
	app.UpdatedBy = actor.ID
	app.UpdatedAt = now
}

// Machine commits lifecycle changes through a Store with optimistic concurrency.
type Machine struct {
	store       Store
	now         func() time.Time
	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithNow overrides the machine's clock.
func WithNow(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates a state machine backed by store.
func NewMachine(store Store, opts ...MachineOption) *Machine {
	counter, err := otel.Meter("memberportal/application").Int64Counter(
		"portal.transitions",
		metric.WithDescription("Application lifecycle changes by event and outcome"),
	)
	if err != nil {
		counter = noop.Int64Counter{}
	}

	m := &Machine{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		tracer:      otel.Tracer("memberportal/application"),
		transitions: counter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create persists a new draft owned by actor.
func (m *Machine) Create(ctx context.Context, actor Actor, details Details) (Application, error) {
	now := m.now()
	app := Application{
		ID:          uuid.New(),
		ApplicantID: actor.ID,
		Status:      StatusDraft,
		CreatedAt:   now,
	}
	applyDetails(&app, details)
	stamp(&app, EventCreated, actor, now)

	saved, err := m.commit(ctx, app, 0)
	m.record(ctx, EventCreated, err)
	return saved, err
}

func applyDetails(app *Application, d Details) {
	if d.Type != "" {
		app.Type = d.Type
	}
	if d.PersonalInfo != nil {
		p := *d.PersonalInfo
		app.PersonalInfo = &p
	}
	if d.ProfessionalInfo != nil {
		p := *d.ProfessionalInfo
		app.ProfessionalInfo = &p
	}
	if d.References != nil {
		refs := make([]Reference, len(d.References))
		for i, r := range d.References {
			refs[i] = Reference{Name: r.Name, Email: r.Email, Organization: r.Organization, Relationship: r.Relationship}
		}
		app.References = refs
	}
}

// EditDetails is the amendment applying applicant edits; allowed in Draft and PendingDocuments.
func EditDetails(d Details) Amendment {
	return Amendment{
		Event: EventDetailsUpdated,
		By:    OwnerOnly,
		In:    []Status{StatusDraft, StatusPendingDocuments},
		Apply: func(app *Application) error {
			applyDetails(app, d)
			return nil
		},
	}
}

// Transition moves app to status to on behalf of actor. On any error the stored
// application and app are left unchanged.
func (m *Machine) Transition(ctx context.Context, app Application, to Status, actor Actor, payload Payload, expectedVersion int) (Application, error) {
	ctx, span := m.tracer.Start(ctx, "application.transition",
		trace.WithAttributes(
			attribute.String("application.id", app.ID.String()),
			attribute.String("from", string(app.Status)),
			attribute.String("to", string(to)),
			attribute.Int("expected.version", expectedVersion),
		),
	)
	defer span.End()

	next, event, err := Plan(app, to, actor, payload, expectedVersion, m.now())
	if err != nil {
		m.record(ctx, "", err)
		span.SetAttributes(attribute.String("rejected", err.Error()))
		return Application{}, err
	}

	saved, err := m.commit(ctx, next, expectedVersion)
	m.record(ctx, event, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
	}
	return saved, err
}

// Amend commits a status-preserving change with the same guards as Transition.
func (m *Machine) Amend(ctx context.Context, app Application, actor Actor, a Amendment, expectedVersion int) (Application, error) {
	ctx, span := m.tracer.Start(ctx, "application.amend",
		trace.WithAttributes(
			attribute.String("application.id", app.ID.String()),
			attribute.String("event", string(a.Event)),
			attribute.Int("expected.version", expectedVersion),
		),
	)
	defer span.End()

	next, err := PlanAmendment(app, actor, a, expectedVersion, m.now())
	if err == nil {
		next, err = m.commit(ctx, next, expectedVersion)
	}
	m.record(ctx, a.Event, err)
	if err != nil {
		span.RecordError(err)
	}
	return next, err
}

func (m *Machine) commit(ctx context.Context, next Application, expectedVersion int) (Application, error) {
	saved, err := m.store.Save(ctx, next, expectedVersion)
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, ErrConflict):
		return Application{}, ErrConcurrentModification
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists):
		return Application{}, err
	}
	return Application{}, &PersistenceError{Op: "save application", Err: err}
}

func (m *Machine) record(ctx context.Context, event Event, err error) {
	outcome := "committed"
	switch {
	case err == nil:
	case errors.Is(err, ErrPersistence):
		outcome = "persistence_error"
	case errors.Is(err, ErrConcurrentModification):
		outcome = "conflict"
	default:
		outcome = "rejected"
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(event)),
		attribute.String("outcome", outcome),
	))
}
