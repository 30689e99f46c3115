// internal/application/domain.go
package application

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a membership application.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusUnderReview      Status = "under_review"
	StatusPendingDocuments Status = "pending_documents"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusWithdrawn        Status = "withdrawn"
)

// Statuses lists every status.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusPendingDocuments,
	StatusApproved,
	StatusRejected,
	StatusWithdrawn,
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether no transition may leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionPending       Decision = "pending"
	DecisionApproved      Decision = "approved"
	DecisionRejected      Decision = "rejected"
	DecisionNeedsMoreInfo Decision = "needs_more_info"
)

// IsValid checks if the decision is known.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionRejected, DecisionNeedsMoreInfo:
		return true
	}
	return false
}

// Event names the change that produced a version of an application.
type Event string

const (
	EventCreated            Event = "ApplicationCreated"
	EventDetailsUpdated     Event = "ApplicationDetailsUpdated"
	EventSubmitted          Event = "ApplicationSubmitted"
	EventReviewStarted      Event = "ApplicationReviewStarted"
	EventDocumentsRequested Event = "ApplicationDocumentsRequested"
	EventDocumentsProvided  Event = "ApplicationDocumentsProvided"
	EventReviewResumed      Event = "ApplicationReviewResumed"
	EventWithdrawn          Event = "ApplicationWithdrawn"
	EventApproved           Event = "ApplicationApproved"
	EventRejected           Event = "ApplicationRejected"
	EventDecisionRecorded   Event = "ApplicationDecisionRecorded"
	EventInterviewScheduled Event = "ApplicationInterviewScheduled"
	EventDocumentUploaded   Event = "ApplicationDocumentUploaded"
	EventDocumentVerified   Event = "ApplicationDocumentVerified"
	EventReferenceVerified  Event = "ApplicationReferenceVerified"
)

// PersonalInfo is opaque to the workflow beyond presence.
type PersonalInfo struct {
	Location     string `json:"location"`
	Occupation   string `json:"occupation"`
	Organization string `json:"organization,omitempty"`
	Website      string `json:"website,omitempty"`
}

// Present reports whether the block was filled in.
func (p *PersonalInfo) Present() bool {
	return p != nil && strings.TrimSpace(p.Location) != "" && strings.TrimSpace(p.Occupation) != ""
}

// ProfessionalInfo is opaque to the workflow beyond presence.
type ProfessionalInfo struct {
	CurrentRole       string   `json:"current_role"`
	YearsOfExperience int      `json:"years_of_experience"`
	Languages         []string `json:"languages,omitempty"`
	AreasOfExpertise  []string `json:"areas_of_expertise,omitempty"`
}

// Present reports whether the block was filled in.
func (p *ProfessionalInfo) Present() bool {
	return p != nil && strings.TrimSpace(p.CurrentRole) != "" && p.YearsOfExperience >= 0
}

// Reference is a person vouching for the applicant.
type Reference struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Organization string    `json:"organization,omitempty"`
	Relationship string    `json:"relationship,omitempty"`
	Verified     bool      `json:"verified"`
	VerifiedAt   time.Time `json:"verified_at,omitempty"`
}

// Document is a stored upload. Reference is issued by document storage.
type Document struct {
	Reference  string    `json:"reference"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
	Verified   bool      `json:"verified"`
}

// Interview is reviewer-scheduled interview metadata.
type Interview struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	ScheduledBy  uuid.UUID `json:"scheduled_by"`
	Notes        string    `json:"notes,omitempty"`
}

// Application is a membership application record.
type Application struct {
	ID                 uuid.UUID         `json:"id"`
	ApplicantID        uuid.UUID         `json:"applicant_id"`
	Status             Status            `json:"status"`
	Type               string            `json:"application_type"`
	PersonalInfo       *PersonalInfo     `json:"personal_info,omitempty"`
	ProfessionalInfo   *ProfessionalInfo `json:"professional_info,omitempty"`
	References         []Reference       `json:"references"`
	Documents          []Document        `json:"documents"`
	RequestedDocuments []string          `json:"requested_documents,omitempty"`
	Interview          *Interview        `json:"interview,omitempty"`
	ReviewerID         uuid.NullUUID     `json:"reviewer_id"`
	Decision           Decision          `json:"decision,omitempty"`
	ReviewComments     string            `json:"review_comments,omitempty"`
	SubmittedAt        time.Time         `json:"submitted_at,omitempty"`
	ReviewedAt         time.Time         `json:"reviewed_at,omitempty"`
	ApprovedAt         time.Time         `json:"approved_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	UpdatedBy          uuid.UUID         `json:"updated_by"`
	LastEvent          Event             `json:"last_event"`
	Version            int               `json:"version"`
}

// Clone returns a deep copy so callers never share slices with a store.
func (a Application) Clone() Application {
	c := a
	if a.PersonalInfo != nil {
		p := *a.PersonalInfo
		c.PersonalInfo = &p
	}
	if a.ProfessionalInfo != nil {
		p := *a.ProfessionalInfo
		p.Languages = slices.Clone(a.ProfessionalInfo.Languages)
		p.AreasOfExpertise = slices.Clone(a.ProfessionalInfo.AreasOfExpertise)
		c.ProfessionalInfo = &p
	}
	c.References = slices.Clone(a.References)
	c.Documents = slices.Clone(a.Documents)
	c.RequestedDocuments = slices.Clone(a.RequestedDocuments)
	if a.Interview != nil {
		i := *a.Interview
		c.Interview = &i
	}
	return c
}

// Details are the applicant-editable parts of an application.
type Details struct {
	Type             string            `json:"application_type"`
	PersonalInfo     *PersonalInfo     `json:"personal_info,omitempty"`
	ProfessionalInfo *ProfessionalInfo `json:"professional_info,omitempty"`
	References       []Reference       `json:"references,omitempty"`
}

// Checklist is the reviewer's verification checklist.
type Checklist struct {
	DocumentsReviewed   bool `json:"documents_reviewed"`
	CredentialsVerified bool `json:"credentials_verified"`
	ReferencesContacted bool `json:"references_contacted"`
}

// Complete reports whether the items required for approval are ticked.
func (c Checklist) Complete() bool {
	return c.DocumentsReviewed && c.CredentialsVerified
}

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	OwnerID uuid.UUID
	Status  Status
}

// Matches reports whether app satisfies the filter.
func (f Filter) Matches(app Application) bool {
	if f.OwnerID != uuid.Nil && app.ApplicantID != f.OwnerID {
		return false
	}
	if f.Status != "" && app.Status != f.Status {
		return false
	}
	return true
}

// Change is one committed version in an application's history.
type Change struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Event         Event     `json:"event"`
	Status        Status    `json:"status"`
	Version       int       `json:"version"`
	ActorID       uuid.UUID `json:"actor_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
