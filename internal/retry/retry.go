// internal/retry/retry.go
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds the exponential backoff used for idempotent reads.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default retries three times starting at 50ms.
var Default = Policy{MaxTries: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}

// Read runs op until it succeeds, returns an error for which permanent reports true,
// or the policy is exhausted. Writes must never go through Read.
func Read[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), permanent func(error) bool) (T, error) {
	if p.MaxTries == 0 {
		p = Default
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && permanent != nil && permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxTries))
}
