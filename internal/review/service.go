// internal/review/service.go
package review

import (
	"context"
	"time"

	"github.com/google/uuid"

	"memberportal/internal/access"
	"memberportal/internal/application"
)

// Service is the review workflow. Every operation evaluates an access policy for the
// principal before touching the state machine. A version of 0 means "the version
// just read"; any other value must match the stored version.
type Service interface {
	CreateDraft(ctx context.Context, p *access.Principal, details application.Details) (application.Application, error)
	Get(ctx context.Context, p *access.Principal, id uuid.UUID) (application.Application, error)
	List(ctx context.Context, p *access.Principal, f application.Filter) ([]application.Application, error)
	Timeline(ctx context.Context, p *access.Principal, id uuid.UUID) ([]application.Change, error)

	UpdateDetails(ctx context.Context, p *access.Principal, id uuid.UUID, version int, details application.Details) (application.Application, error)
	Submit(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error)
	UploadDocument(ctx context.Context, p *access.Principal, id uuid.UUID, version int, upload Upload) (application.Application, error)
	Withdraw(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error)

	StartReview(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error)
	ResumeReview(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error)
	RequestDocuments(ctx context.Context, p *access.Principal, id uuid.UUID, version int, descriptions []string) (application.Application, error)
	ScheduleInterview(ctx context.Context, p *access.Principal, id uuid.UUID, version int, at time.Time, notes string) (application.Application, error)
	SubmitDecision(ctx context.Context, p *access.Principal, id uuid.UUID, version int, v Verdict) (application.Application, error)
	VerifyDocument(ctx context.Context, p *access.Principal, id uuid.UUID, version int, reference string) (application.Application, error)
	VerifyReference(ctx context.Context, p *access.Principal, id uuid.UUID, version int, index int) (application.Application, error)
}

// Upload is the metadata of a file handed to document storage.
type Upload struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Verdict is a reviewer's decision on an application.
type Verdict struct {
	Decision           application.Decision  `json:"decision"`
	Comments           string                `json:"comments"`
	Checklist          application.Checklist `json:"checklist"`
	RequestedDocuments []string              `json:"requested_documents,omitempty"`
}

var (
	// OwnerPolicy gates applicant actions. Elevated roles pass it, and the state
	// machine then decides whether they may perform the specific transition.
	OwnerPolicy = access.Policy{RequiresOwnership: true}

	// ReviewerPolicy gates reviewer actions.
	ReviewerPolicy = access.Policy{
		AllowedRoles:             []access.Role{access.RoleBoard, access.RoleAdmin},
		RequiresActiveMembership: true,
	}

	// AuthenticatedPolicy admits any signed-in principal.
	AuthenticatedPolicy = access.Policy{}
)
