// internal/notify/log.go
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier records notifications in the log. It is used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyReferenceRequest(ctx context.Context, req ReferenceRequest) error {
	n.log.Info("reference request",
		zap.Stringer("application_id", req.ApplicationID),
		zap.String("reference_email", req.Email),
	)
	return nil
}

func (n *LogNotifier) NotifyInterviewScheduled(ctx context.Context, applicationID uuid.UUID, at time.Time) error {
	n.log.Info("interview scheduled",
		zap.Stringer("application_id", applicationID),
		zap.Time("scheduled_for", at),
	)
	return nil
}

func (n *LogNotifier) NotifyDecision(ctx context.Context, applicationID uuid.UUID, decision string) error {
	n.log.Info("decision",
		zap.Stringer("application_id", applicationID),
		zap.String("decision", decision),
	)
	return nil
}
