// internal/navigation/capabilities.go
package navigation

import "memberportal/internal/access"

var (
	anyRole   = []access.Role{access.RoleMember, access.RoleBoard, access.RoleAdmin}
	reviewers = []access.Role{access.RoleBoard, access.RoleAdmin}
	admins    = []access.Role{access.RoleAdmin}
)

// Capabilities is the portal's capability table.
var Capabilities = []Capability{
	{ID: "dashboard", Path: "/dashboard", Action: "view your dashboard"},
	{ID: "profile.view", Path: "/profile", Action: "view your profile", Policy: access.Policy{AllowedRoles: anyRole}},
	{ID: "membership.view", Path: "/membership", Action: "view membership details", Policy: access.Policy{AllowedRoles: anyRole}},

	{ID: "applications.status", Path: "/membership/status", Action: "check your application status"},
	{ID: "applications.create", Path: "/applications/new", Action: "start an application", Mutating: true},
	{ID: "applications.view", Path: "/applications/{id}", Action: "view this application",
		Policy: access.Policy{RequiresOwnership: true}, Resource: ResourceApplication},
	{ID: "applications.edit", Path: "/applications/{id}/edit", Action: "edit this application", Mutating: true,
		Policy: access.Policy{RequiresOwnership: true}, Resource: ResourceApplication},
	{ID: "applications.withdraw", Path: "/applications/{id}/withdraw", Action: "withdraw this application", Mutating: true,
		Policy: access.Policy{RequiresOwnership: true}, Resource: ResourceApplication},
	{ID: "applications.review", Path: "/applications/review", Action: "review applications",
		Policy: access.Policy{AllowedRoles: reviewers}},
	{ID: "applications.review.action", Path: "/applications/{id}/review", Action: "review this application", Mutating: true,
		Policy: access.Policy{AllowedRoles: reviewers, RequiresActiveMembership: true}, Resource: ResourceApplication},

	{ID: "events.list", Path: "/events", Action: "browse events"},
	{ID: "events.register", Path: "/events/{id}/register", Action: "register for events", Mutating: true,
		Policy: access.Policy{RequiresActiveMembership: true}, Resource: ResourceEvent},
	{ID: "events.premium", Path: "/events/premium", Action: "premium events",
		Policy: access.Policy{AllowedTiers: access.TiersFrom(access.TierSilver), RequiresActiveMembership: true}},

	{ID: "volunteer.opportunities", Path: "/volunteer", Action: "browse volunteer opportunities",
		Policy: access.Policy{RequiresActiveMembership: true}},
	{ID: "volunteer.apply", Path: "/volunteer/{id}/apply", Action: "apply for volunteer opportunities", Mutating: true,
		Policy: access.Policy{RequiresActiveMembership: true}},
	{ID: "volunteer.hours", Path: "/volunteer/hours", Action: "log volunteer hours", Mutating: true,
		Policy: access.Policy{RequiresActiveMembership: true, RequiresVolunteerApproval: true}},

	{ID: "members.directory", Path: "/members", Action: "view the member directory", Policy: access.Policy{AllowedRoles: reviewers}},
	{ID: "board.reports", Path: "/board/reports", Action: "view board reports", Policy: access.Policy{AllowedRoles: reviewers}},
	{ID: "admin.dashboard", Path: "/admin", Action: "open the admin dashboard", Policy: access.Policy{AllowedRoles: admins}},
	{ID: "admin.settings", Path: "/admin/settings", Action: "change portal settings", Mutating: true,
		Policy: access.Policy{AllowedRoles: admins, RequiresActiveMembership: true}},
}

// DefaultRegistry returns a registry over Capabilities.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Capabilities...)
	if err != nil {
		panic(err)
	}
	return r
}
