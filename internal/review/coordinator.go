// internal/review/coordinator.go
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/application"
	"memberportal/internal/clients"
	"memberportal/internal/notify"
	"memberportal/internal/retry"
)

var ErrDocumentStorage = errors.New("document storage failed")

// DocumentStorage stores uploaded files and returns their references.
type DocumentStorage interface {
	Upload(ctx context.Context, upload clients.UploadRequest) (application.Document, error)
}

// coordinator implements the Service interface.
type coordinator struct {
	machine   *application.Machine
	repo      application.Repository
	evaluator *access.Evaluator
	documents DocumentStorage
	notifier  notify.Notifier
	log       *zap.Logger
	retry     retry.Policy
	now       func() time.Time
	denials   metric.Int64Counter
}

// Option configures the coordinator.
type Option func(*coordinator)

// WithClock overrides the clock used for interview dates and verification stamps.
func WithClock(now func() time.Time) Option {
	return func(c *coordinator) { c.now = now }
}

// WithReadRetry sets the backoff used for application reads.
func WithReadRetry(p retry.Policy) Option {
	return func(c *coordinator) { c.retry = p }
}

// NewService creates a review workflow over machine and repo.
func NewService(machine *application.Machine, repo application.Repository, evaluator *access.Evaluator, documents DocumentStorage, notifier notify.Notifier, log *zap.Logger, opts ...Option) Service {
	denials, err := otel.Meter("memberportal/review").Int64Counter(
		"portal.access.denials",
		metric.WithDescription("Access policy denials by reason"),
	)
	if err != nil {
		denials = noop.Int64Counter{}
	}

	c := &coordinator{
		machine:   machine,
		repo:      repo,
		evaluator: evaluator,
		documents: documents,
		notifier:  notifier,
		log:       log,
		retry:     retry.Default,
		now:       func() time.Time { return time.Now().UTC() },
		denials:   denials,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *coordinator) authorize(ctx context.Context, p *access.Principal, policy access.Policy, rc *access.ResourceContext) error {
	d := c.evaluator.Evaluate(p, policy, rc)
	if d.Allowed {
		return nil
	}
	c.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(d.Reason))))
	c.log.Debug("access denied", zap.String("reason", string(d.Reason)))
	return d.Err()
}

func (c *coordinator) read(ctx context.Context, id uuid.UUID) (application.Application, error) {
	app, err := retry.Read(ctx, c.retry, func(ctx context.Context) (application.Application, error) {
		return c.repo.Get(ctx, id)
	}, isNotFound)
	if err != nil && !errors.Is(err, application.ErrNotFound) {
		return application.Application{}, &application.PersistenceError{Op: "get application", Err: err}
	}
	return app, err
}

func isNotFound(err error) bool {
	return errors.Is(err, application.ErrNotFound)
}

// load reads id and evaluates policy against it. Anonymous callers are denied
// before anything is read.
func (c *coordinator) load(ctx context.Context, p *access.Principal, id uuid.UUID, policy access.Policy) (application.Application, error) {
	if p == nil {
		return application.Application{}, c.authorize(ctx, nil, policy, nil)
	}
	app, err := c.read(ctx, id)
	if err != nil {
		return application.Application{}, err
	}
	if err := c.authorize(ctx, p, policy, &access.ResourceContext{OwnerID: app.ApplicantID}); err != nil {
		return application.Application{}, err
	}
	return app, nil
}

func expected(version int, app application.Application) int {
	if version == 0 {
		return app.Version
	}
	return version
}

func (c *coordinator) transition(ctx context.Context, p *access.Principal, id uuid.UUID, version int, policy access.Policy, to application.Status, payload application.Payload) (application.Application, error) {
	app, err := c.load(ctx, p, id, policy)
	if err != nil {
		return application.Application{}, err
	}
	return c.machine.Transition(ctx, app, to, application.ActorOf(*p), payload, expected(version, app))
}

func (c *coordinator) amend(ctx context.Context, p *access.Principal, id uuid.UUID, version int, policy access.Policy, a application.Amendment) (application.Application, error) {
	app, err := c.load(ctx, p, id, policy)
	if err != nil {
		return application.Application{}, err
	}
	return c.machine.Amend(ctx, app, application.ActorOf(*p), a, expected(version, app))
}

func (c *coordinator) CreateDraft(ctx context.Context, p *access.Principal, details application.Details) (application.Application, error) {
	if err := c.authorize(ctx, p, AuthenticatedPolicy, nil); err != nil {
		return application.Application{}, err
	}
	return c.machine.Create(ctx, application.ActorOf(*p), details)
}

func (c *coordinator) Get(ctx context.Context, p *access.Principal, id uuid.UUID) (application.Application, error) {
	return c.load(ctx, p, id, OwnerPolicy)
}

// List returns every matching application to reviewers and only their own to members.
func (c *coordinator) List(ctx context.Context, p *access.Principal, f application.Filter) ([]application.Application, error) {
	if err := c.authorize(ctx, p, AuthenticatedPolicy, nil); err != nil {
		return nil, err
	}
	if !p.Role.Elevated() {
		f.OwnerID = p.ID
	}
	apps, err := retry.Read(ctx, c.retry, func(ctx context.Context) ([]application.Application, error) {
		return c.repo.List(ctx, f)
	}, nil)
	if err != nil {
		return nil, &application.PersistenceError{Op: "list applications", Err: err}
	}
	return apps, nil
}

func (c *coordinator) Timeline(ctx context.Context, p *access.Principal, id uuid.UUID) ([]application.Change, error) {
	if _, err := c.load(ctx, p, id, OwnerPolicy); err != nil {
		return nil, err
	}
	changes, err := retry.Read(ctx, c.retry, func(ctx context.Context) ([]application.Change, error) {
		return c.repo.History(ctx, id)
	}, isNotFound)
	if err != nil && !errors.Is(err, application.ErrNotFound) {
		return nil, &application.PersistenceError{Op: "read history", Err: err}
	}
	return changes, err
}

func (c *coordinator) UpdateDetails(ctx context.Context, p *access.Principal, id uuid.UUID, version int, details application.Details) (application.Application, error) {
	return c.amend(ctx, p, id, version, OwnerPolicy, application.EditDetails(details))
}

// Submit moves a draft to Submitted and then asks each referee to vouch.
func (c *coordinator) Submit(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error) {
	app, err := c.transition(ctx, p, id, version, OwnerPolicy, application.StatusSubmitted, application.Payload{})
	if err != nil {
		return application.Application{}, err
	}
	for _, ref := range app.References {
		err := c.notifier.NotifyReferenceRequest(ctx, notify.ReferenceRequest{
			ApplicationID: app.ID,
			ApplicantID:   app.ApplicantID,
			Name:          ref.Name,
			Email:         ref.Email,
		})
		c.notified(app.ID, notify.KindReferenceRequest, err)
	}
	return app, nil
}

// UploadDocument stores the file, then records it. In PendingDocuments the upload
// also resumes the review.
func (c *coordinator) UploadDocument(ctx context.Context, p *access.Principal, id uuid.UUID, version int, upload Upload) (application.Application, error) {
	app, err := c.load(ctx, p, id, OwnerPolicy)
	if err != nil {
		return application.Application{}, err
	}
	if strings.TrimSpace(upload.Name) == "" {
		return application.Application{}, &application.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	// Reject early so storage is not left holding an orphaned file.
	switch {
	case app.Status.Terminal():
		return application.Application{}, application.ErrApplicationFinalized
	case expected(version, app) != app.Version:
		return application.Application{}, application.ErrConcurrentModification
	case app.Status != application.StatusDraft && app.Status != application.StatusPendingDocuments:
		return application.Application{}, &application.InvalidTransitionError{From: app.Status, To: app.Status}
	case p.ID != app.ApplicantID:
		return application.Application{}, application.ErrUnauthorizedActor
	}

	doc, err := c.documents.Upload(ctx, clients.UploadRequest{
		ApplicationID: app.ID,
		Name:          upload.Name,
		Size:          upload.Size,
		MimeType:      upload.MimeType,
	})
	if err != nil {
		return application.Application{}, fmt.Errorf("%w: %v", ErrDocumentStorage, err)
	}
	doc.Verified = false

	actor := application.ActorOf(*p)
	if app.Status == application.StatusPendingDocuments {
		return c.machine.Transition(ctx, app, application.StatusUnderReview, actor,
			application.Payload{Documents: []application.Document{doc}}, app.Version)
	}
	return c.machine.Amend(ctx, app, actor, application.Amendment{
		Event: application.EventDocumentUploaded,
		By:    application.OwnerOnly,
		In:    []application.Status{application.StatusDraft},
		Apply: func(a *application.Application) error {
			a.Documents = append(a.Documents, doc)
			return nil
		},
	}, app.Version)
}

func (c *coordinator) Withdraw(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error) {
	return c.transition(ctx, p, id, version, OwnerPolicy, application.StatusWithdrawn, application.Payload{})
}

func (c *coordinator) StartReview(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error) {
	return c.transition(ctx, p, id, version, ReviewerPolicy, application.StatusUnderReview, application.Payload{})
}

// ResumeReview forces PendingDocuments back to UnderReview without new documents.
func (c *coordinator) ResumeReview(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error) {
	app, err := c.load(ctx, p, id, ReviewerPolicy)
	if err != nil {
		return application.Application{}, err
	}
	if !app.Status.Terminal() && app.Status != application.StatusPendingDocuments {
		return application.Application{}, &application.InvalidTransitionError{From: app.Status, To: application.StatusUnderReview}
	}
	return c.machine.Transition(ctx, app, application.StatusUnderReview, application.ActorOf(*p), application.Payload{}, expected(version, app))
}

func (c *coordinator) RequestDocuments(ctx context.Context, p *access.Principal, id uuid.UUID, version int, descriptions []string) (application.Application, error) {
	if err := c.authorize(ctx, p, ReviewerPolicy, nil); err != nil {
		return application.Application{}, err
	}
	if !hasText(descriptions) {
		return application.Application{}, &application.ValidationError{Field: "requested_documents", Reason: "at least one description is required"}
	}
	return c.transition(ctx, p, id, version, ReviewerPolicy, application.StatusPendingDocuments,
		application.Payload{RequestedDocuments: descriptions})
}

// ScheduleInterview attaches interview metadata without changing status.
func (c *coordinator) ScheduleInterview(ctx context.Context, p *access.Principal, id uuid.UUID, version int, at time.Time, notes string) (application.Application, error) {
	if err := c.authorize(ctx, p, ReviewerPolicy, nil); err != nil {
		return application.Application{}, err
	}
	if !at.After(c.now()) {
		return application.Application{}, &application.ValidationError{Field: "date", Reason: "must be in the future"}
	}

	scheduler := p.ID
	app, err := c.amend(ctx, p, id, version, ReviewerPolicy, application.Amendment{
		Event: application.EventInterviewScheduled,
		By:    application.ReviewerOnly,
		Apply: func(a *application.Application) error {
			a.Interview = &application.Interview{ScheduledFor: at.UTC(), ScheduledBy: scheduler, Notes: notes}
			return nil
		},
	})
	if err != nil {
		return application.Application{}, err
	}
	c.notified(app.ID, notify.KindInterviewScheduled, c.notifier.NotifyInterviewScheduled(ctx, app.ID, at.UTC()))
	return app, nil
}

// SubmitDecision validates the verdict and commits it. Approval and rejection are
// terminal transitions; needs_more_info requests documents when a list is given and
// otherwise only records the decision.
func (c *coordinator) SubmitDecision(ctx context.Context, p *access.Principal, id uuid.UUID, version int, v Verdict) (application.Application, error) {
	if err := c.authorize(ctx, p, ReviewerPolicy, nil); err != nil {
		return application.Application{}, err
	}
	if strings.TrimSpace(v.Comments) == "" {
		return application.Application{}, &application.ValidationError{Field: "comments", Reason: "must not be empty"}
	}

	payload := application.Payload{
		Decision:           v.Decision,
		Comments:           v.Comments,
		Checklist:          v.Checklist,
		RequestedDocuments: v.RequestedDocuments,
	}

	var (
		app application.Application
		err error
	)
	switch v.Decision {
	case application.DecisionApproved:
		if !v.Checklist.Complete() {
			return application.Application{}, &application.ValidationError{Field: "checklist", Reason: "documents must be reviewed and credentials verified"}
		}
		app, err = c.transition(ctx, p, id, version, ReviewerPolicy, application.StatusApproved, payload)
	case application.DecisionRejected:
		app, err = c.transition(ctx, p, id, version, ReviewerPolicy, application.StatusRejected, payload)
	case application.DecisionNeedsMoreInfo:
		if hasText(v.RequestedDocuments) {
			app, err = c.transition(ctx, p, id, version, ReviewerPolicy, application.StatusPendingDocuments, payload)
		} else {
			app, err = c.amend(ctx, p, id, version, ReviewerPolicy, recordDecision(v))
		}
	default:
		return application.Application{}, &application.ValidationError{Field: "decision", Reason: fmt.Sprintf("unsupported decision %q", v.Decision)}
	}
	if err != nil {
		return application.Application{}, err
	}

	c.notified(app.ID, notify.KindDecision, c.notifier.NotifyDecision(ctx, app.ID, string(v.Decision)))
	return app, nil
}

func recordDecision(v Verdict) application.Amendment {
	return application.Amendment{
		Event: application.EventDecisionRecorded,
		By:    application.ReviewerOnly,
		In:    []application.Status{application.StatusUnderReview, application.StatusPendingDocuments},
		Apply: func(a *application.Application) error {
			a.Decision = v.Decision
			a.ReviewComments = v.Comments
			return nil
		},
	}
}

func (c *coordinator) VerifyDocument(ctx context.Context, p *access.Principal, id uuid.UUID, version int, reference string) (application.Application, error) {
	return c.amend(ctx, p, id, version, ReviewerPolicy, application.Amendment{
		Event: application.EventDocumentVerified,
		By:    application.ReviewerOnly,
		Apply: func(a *application.Application) error {
			for i := range a.Documents {
				if a.Documents[i].Reference == reference {
					a.Documents[i].Verified = true
					return nil
				}
			}
			return &application.ValidationError{Field: "document", Reason: fmt.Sprintf("no document with reference %q", reference)}
		},
	})
}

func (c *coordinator) VerifyReference(ctx context.Context, p *access.Principal, id uuid.UUID, version int, index int) (application.Application, error) {
	now := c.now()
	return c.amend(ctx, p, id, version, ReviewerPolicy, application.Amendment{
		Event: application.EventReferenceVerified,
		By:    application.ReviewerOnly,
		Apply: func(a *application.Application) error {
			if index < 0 || index >= len(a.References) {
				return &application.ValidationError{Field: "reference", Reason: fmt.Sprintf("no reference at index %d", index)}
			}
			a.References[index].Verified = true
			a.References[index].VerifiedAt = now
			return nil
		},
	})
}

func (c *coordinator) notified(id uuid.UUID, kind notify.Kind, err error) {
	if err == nil {
		return
	}
	c.log.Warn("notification failed",
		zap.Stringer("application_id", id),
		zap.String("notification", string(kind)),
		zap.Error(err),
	)
}

func hasText(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
