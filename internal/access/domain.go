// internal/access/domain.go
package access

import (
	"time"

	"github.com/google/uuid"
)

// Role is the functional category of a principal.
type Role string

const (
	RoleMember Role = "member"
	RoleBoard  Role = "board"
	RoleAdmin  Role = "admin"
)

// Elevated reports whether the role bypasses ownership checks.
func (r Role) Elevated() bool {
	return r == RoleBoard || r == RoleAdmin
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleBoard, RoleAdmin:
		return true
	}
	return false
}

// Tier is the ordered membership ranking used for access tiering.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Rank returns the position of the tier in bronze < silver < gold < platinum.
// Unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierPlatinum:
		return 4
	}
	return 0
}

// TiersFrom returns every known tier ranked at or above min.
func TiersFrom(min Tier) []Tier {
	var tiers []Tier
	for _, t := range []Tier{TierBronze, TierSilver, TierGold, TierPlatinum} {
		if t.Rank() >= min.Rank() {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

// BillingPlan is the membership billing category. It never gates access.
type BillingPlan string

const (
	BillingStudent    BillingPlan = "student"
	BillingIndividual BillingPlan = "individual"
	BillingFamily     BillingPlan = "family"
)

// MembershipStatus is the account standing of a principal.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipInactive  MembershipStatus = "inactive"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipPending   MembershipStatus = "pending"
)

// VolunteerStatus is the volunteer-approval state of a principal.
type VolunteerStatus string

const (
	VolunteerPending  VolunteerStatus = "pending"
	VolunteerApproved VolunteerStatus = "approved"
	VolunteerRejected VolunteerStatus = "rejected"
	VolunteerInactive VolunteerStatus = "inactive"
)

// Principal is the authenticated actor whose access is being evaluated.
// It is read-only to this module; profile and auth services own it.
type Principal struct {
	ID               uuid.UUID        `json:"id"`
	Email            string           `json:"email,omitempty"`
	Role             Role             `json:"role"`
	Tier             Tier             `json:"tier"`
	BillingPlan      BillingPlan      `json:"billing_plan,omitempty"`
	MembershipStatus MembershipStatus `json:"membership_status"`
	VolunteerStatus  VolunteerStatus  `json:"volunteer_status"`
}

// Window bounds when a capability is available. Zero ends are open.
type Window struct {
	NotBefore time.Time `json:"not_before,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`
}

// Capacity is a pair of occupancy counters.
type Capacity struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Policy is the declarative set of conditions required to use a capability.
type Policy struct {
	AllowedRoles              []Role    `json:"allowed_roles,omitempty"`
	AllowedTiers              []Tier    `json:"allowed_tiers,omitempty"`
	RequiresActiveMembership  bool      `json:"requires_active_membership,omitempty"`
	RequiresVolunteerApproval bool      `json:"requires_volunteer_approval,omitempty"`
	RequiresOwnership         bool      `json:"requires_ownership,omitempty"`
	Window                    *Window   `json:"window,omitempty"`
	Capacity                  *Capacity `json:"capacity,omitempty"`
}

// ResourceContext describes the resource a capability acts upon.
// Capacity, when set, takes precedence over the policy's own counters.
type ResourceContext struct {
	OwnerID  uuid.UUID `json:"owner_id"`
	Capacity *Capacity `json:"capacity,omitempty"`
}

// Reason names why access was denied.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonAccountSuspended     Reason = "account_suspended"
	ReasonRoleMismatch         Reason = "role_mismatch"
	ReasonTierMismatch         Reason = "tier_mismatch"
	ReasonInactiveMembership   Reason = "inactive_membership"
	ReasonVolunteerNotApproved Reason = "volunteer_not_approved"
	ReasonNotOwner             Reason = "not_owner"
	ReasonTooEarly             Reason = "too_early"
	ReasonTooLate              Reason = "too_late"
	ReasonAtCapacity           Reason = "at_capacity"
)

// Reasons lists every denial reason in evaluation order.
var Reasons = []Reason{
	ReasonUnauthenticated,
	ReasonAccountSuspended,
	ReasonRoleMismatch,
	ReasonTierMismatch,
	ReasonInactiveMembership,
	ReasonVolunteerNotApproved,
	ReasonNotOwner,
	ReasonTooEarly,
	ReasonTooLate,
	ReasonAtCapacity,
}

// OutsideWindow reports whether the reason is one of the time-window denials.
func (r Reason) OutsideWindow() bool {
	return r == ReasonTooEarly || r == ReasonTooLate
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Allow is the permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision for reason.
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}
