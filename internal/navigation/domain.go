// internal/navigation/domain.go
package navigation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"memberportal/internal/access"
)

// CapabilityID names a page or action.
type CapabilityID string

// ResourceKind names the kind of record a capability acts on.
type ResourceKind string

const (
	ResourceNone        ResourceKind = ""
	ResourceApplication ResourceKind = "application"
	ResourceEvent       ResourceKind = "event"
)

// Capability is the declarative descriptor of a page or action.
type Capability struct {
	ID       CapabilityID  `json:"id"`
	Path     string        `json:"path"`
	Action   string        `json:"action"`
	Policy   access.Policy `json:"-"`
	Mutating bool          `json:"mutating"`
	Resource ResourceKind  `json:"resource,omitempty"`
}

// PathFor fills the {id} segment of the capability path.
func (c Capability) PathFor(resourceID string) string {
	if resourceID == "" {
		return c.Path
	}
	return strings.ReplaceAll(c.Path, "{id}", resourceID)
}

// Resource is what a capability's target contributes to its evaluation. Window,
// AllowedTiers and RequiresActiveMembership, when set, replace the capability's
// static values.
type Resource struct {
	OwnerID                  uuid.UUID
	Capacity                 *access.Capacity
	Window                   *access.Window
	AllowedTiers             []access.Tier
	RequiresActiveMembership *bool
}

// Kind discriminates a resolution result.
type Kind string

const (
	KindProceed      Kind = "proceed"
	KindRedirect     Kind = "redirect"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
)

// Result is the outcome of resolving a capability for a principal.
type Result struct {
	Kind       Kind          `json:"result"`
	Capability *Capability   `json:"capability,omitempty"`
	Reason     access.Reason `json:"reason,omitempty"`
	Message    string        `json:"message,omitempty"`
	RedirectTo string        `json:"redirect_to,omitempty"`
}

// Request names the capability to resolve and, optionally, its target and the
// path the user asked for.
type Request struct {
	Capability CapabilityID
	ResourceID string
	Path       string
}

// Registry holds the capability descriptors.
type Registry struct {
	caps  map[CapabilityID]Capability
	order []CapabilityID
}

// NewRegistry builds a registry, rejecting duplicate or empty ids.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[CapabilityID]Capability, len(caps))}
	for _, c := range caps {
		if c.ID == "" {
			return nil, fmt.Errorf("capability with path %q has no id", c.Path)
		}
		if _, dup := r.caps[c.ID]; dup {
			return nil, fmt.Errorf("duplicate capability %q", c.ID)
		}
		r.caps[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r, nil
}

func (r *Registry) Lookup(id CapabilityID) (Capability, bool) {
	c, ok := r.caps[id]
	return c, ok
}

// All returns the capabilities in registration order.
func (r *Registry) All() []Capability {
	out := make([]Capability, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.caps[id])
	}
	return out
}
