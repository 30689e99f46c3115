// internal/access/messages.go
package access

import (
	"errors"
	"fmt"
)

// DefaultAction is used in messages when a capability does not name its action.
const DefaultAction = "access this feature"

const dateLayout = "January 2, 2006"

// Message renders the user-facing text for a denial. Each reason has exactly one
// template; action and policy only fill its blanks.
func Message(reason Reason, action string, policy Policy) string {
	if action == "" {
		action = DefaultAction
	}

	switch reason {
	case ReasonNone:
		return ""
	case ReasonUnauthenticated:
		return "Please sign in to continue."
	case ReasonAccountSuspended:
		return fmt.Sprintf("Your account is suspended. You cannot %s at this time. Please contact support for assistance.", action)
	case ReasonRoleMismatch:
		return fmt.Sprintf("You don't have the required role to %s.", action)
	case ReasonTierMismatch:
		return fmt.Sprintf("Your membership tier does not include access to %s. Upgrade your membership to continue.", action)
	case ReasonInactiveMembership:
		return fmt.Sprintf("Active membership required to %s. Please renew your membership or contact support.", action)
	case ReasonVolunteerNotApproved:
		return fmt.Sprintf("Volunteer approval required to %s. Please complete the volunteer application process.", action)
	case ReasonNotOwner:
		return "You can only access your own resources."
	case ReasonTooEarly:
		if policy.Window != nil && !policy.Window.NotBefore.IsZero() {
			return fmt.Sprintf("This feature will be available starting from %s.", policy.Window.NotBefore.UTC().Format(dateLayout))
		}
		return "This feature is not available yet."
	case ReasonTooLate:
		if policy.Window != nil && !policy.Window.NotAfter.IsZero() {
			return fmt.Sprintf("This feature is no longer available after %s.", policy.Window.NotAfter.UTC().Format(dateLayout))
		}
		return "This feature is no longer available."
	case ReasonAtCapacity:
		return "This resource is currently at full capacity."
	}
	return "You don't have permission to access this page."
}

// ErrDenied matches every DeniedError.
var ErrDenied = errors.New("access denied")

// DeniedError carries a denial across an error-returning boundary.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Err converts a denying decision into a *DeniedError; it returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// ReasonOf extracts the denial reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return ReasonNone, false
}
