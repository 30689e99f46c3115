// internal/access/evaluator.go
package access

import (
	"slices"
	"time"
)

// Evaluator decides whether a principal may use a capability.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	now func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source used for window checks.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates a new policy evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the policy checks in a fixed order and stops at the first failure.
// A nil principal is unauthenticated; a nil resource context fails any ownership check.
func (e *Evaluator) Evaluate(p *Principal, policy Policy, rc *ResourceContext) Decision {
	if p == nil {
		return Deny(ReasonUnauthenticated)
	}

	// Suspension wins over every ordinary check so the wording stays uniform.
	if p.MembershipStatus == MembershipSuspended && (policy.RequiresActiveMembership || policy.RequiresOwnership) {
		return Deny(ReasonAccountSuspended)
	}

	if len(policy.AllowedRoles) > 0 && !slices.Contains(policy.AllowedRoles, p.Role) {
		return Deny(ReasonRoleMismatch)
	}

	if len(policy.AllowedTiers) > 0 && !slices.Contains(policy.AllowedTiers, p.Tier) {
		return Deny(ReasonTierMismatch)
	}

	if policy.RequiresActiveMembership && p.MembershipStatus != MembershipActive {
		return Deny(ReasonInactiveMembership)
	}

	if policy.RequiresVolunteerApproval && p.VolunteerStatus != VolunteerApproved {
		return Deny(ReasonVolunteerNotApproved)
	}

	if policy.RequiresOwnership && !p.Role.Elevated() {
		if rc == nil || rc.OwnerID != p.ID {
			return Deny(ReasonNotOwner)
		}
	}

	if w := policy.Window; w != nil {
		now := e.now()
		if !w.NotBefore.IsZero() && now.Before(w.NotBefore) {
			return Deny(ReasonTooEarly)
		}
		if !w.NotAfter.IsZero() && now.After(w.NotAfter) {
			return Deny(ReasonTooLate)
		}
	}

	capacity := policy.Capacity
	if rc != nil && rc.Capacity != nil {
		capacity = rc.Capacity
	}
	if capacity != nil && capacity.Current >= capacity.Total {
		return Deny(ReasonAtCapacity)
	}

	return Allow()
}
