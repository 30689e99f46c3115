// internal/notify/breaker.go
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker stops calling a failing notifier until it has had time to recover,
// so a broker outage does not add latency to every workflow commit.
type Breaker struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes when the circuit opens and how long it stays open.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Notifier, s BreakerSettings, log *zap.Logger) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notify",
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("notification circuit changed state",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// State reports the current circuit state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) NotifyReferenceRequest(ctx context.Context, req ReferenceRequest) error {
	return b.run(func() error { return b.next.NotifyReferenceRequest(ctx, req) })
}

func (b *Breaker) NotifyInterviewScheduled(ctx context.Context, applicationID uuid.UUID, at time.Time) error {
	return b.run(func() error { return b.next.NotifyInterviewScheduled(ctx, applicationID, at) })
}

func (b *Breaker) NotifyDecision(ctx context.Context, applicationID uuid.UUID, decision string) error {
	return b.run(func() error { return b.next.NotifyDecision(ctx, applicationID, decision) })
}

func (b *Breaker) run(call func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, call()
	})
	return err
}
