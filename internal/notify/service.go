// internal/notify/service.go
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notifier delivers fire-and-forget workflow notifications. Callers log failures;
// a failed notification never undoes the change that caused it.
type Notifier interface {
	NotifyReferenceRequest(ctx context.Context, req ReferenceRequest) error
	NotifyInterviewScheduled(ctx context.Context, applicationID uuid.UUID, at time.Time) error
	NotifyDecision(ctx context.Context, applicationID uuid.UUID, decision string) error
}

// ReferenceRequest asks a referee to vouch for an applicant.
type ReferenceRequest struct {
	ApplicationID uuid.UUID `json:"application_id"`
	ApplicantID   uuid.UUID `json:"applicant_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
}

// Kind names a notification message.
type Kind string

const (
	KindReferenceRequest   Kind = "reference_request"
	KindInterviewScheduled Kind = "interview_scheduled"
	KindDecision           Kind = "decision"
)

// Message is the JSON body published for every notification.
type Message struct {
	Kind          Kind              `json:"kind"`
	ApplicationID uuid.UUID         `json:"application_id"`
	Reference     *ReferenceRequest `json:"reference,omitempty"`
	InterviewAt   *time.Time        `json:"interview_at,omitempty"`
	Decision      string            `json:"decision,omitempty"`
	SentAt        time.Time         `json:"sent_at"`
}
