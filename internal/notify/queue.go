// internal/notify/queue.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Publisher sends a raw message body to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// QueueNotifier encodes notifications as Message and publishes them to one queue.
type QueueNotifier struct {
	pub   Publisher
	queue string
	now   func() time.Time
}

// NewQueueNotifier creates a notifier publishing to queue.
func NewQueueNotifier(pub Publisher, queue string) *QueueNotifier {
	return &QueueNotifier{
		pub:   pub,
		queue: queue,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (n *QueueNotifier) NotifyReferenceRequest(ctx context.Context, req ReferenceRequest) error {
	return n.send(ctx, Message{Kind: KindReferenceRequest, ApplicationID: req.ApplicationID, Reference: &req})
}

func (n *QueueNotifier) NotifyInterviewScheduled(ctx context.Context, applicationID uuid.UUID, at time.Time) error {
	return n.send(ctx, Message{Kind: KindInterviewScheduled, ApplicationID: applicationID, InterviewAt: &at})
}

func (n *QueueNotifier) NotifyDecision(ctx context.Context, applicationID uuid.UUID, decision string) error {
	return n.send(ctx, Message{Kind: KindDecision, ApplicationID: applicationID, Decision: decision})
}

func (n *QueueNotifier) send(ctx context.Context, msg Message) error {
	msg.SentAt = n.now()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	if err := n.pub.Publish(ctx, n.queue, body); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}
