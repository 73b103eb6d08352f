package gate

import "context"

// Profile represents a role with a set of permissions.
type Profile interface {
	Name() string
	HasPermission(permission Permission) bool
	Permissions() []Permission
}

// ProfileResolver resolves a user to their profile.
type ProfileResolver[U any] interface {
	Resolve(ctx context.Context, user U) (Profile, error)
}

// StaticProfile is an in-memory profile.
type StaticProfile struct {
	name        string
	permissions []Permission
}

func NewStaticProfile(name string, permissions ...Permission) *StaticProfile {
	return &StaticProfile{name: name, permissions: permissions}
}

func (p *StaticProfile) Name() string { return p.name }

// Permissions returns the granted permissions in declaration order.
func (p *StaticProfile) Permissions() []Permission {
	out := make([]Permission, len(p.permissions))
	copy(out, p.permissions)
	return out
}

// HasPermission supports wildcard matching.
func (p *StaticProfile) HasPermission(requested Permission) bool {
	for _, perm := range p.permissions {
		if perm.Matches(requested) {
			return true
		}
	}
	return false
}

// Role profiles of the back-office.
var (
	ProfileAdmin = NewStaticProfile("admin", PermissionSuperAdmin)

	ProfileAccountant = NewStaticProfile("accountant",
		"invoice:*",
		"order:*",
		"settings:view",
		"product:view",
		"product:list",
	)

	ProfileViewer = NewStaticProfile("viewer", "*:view", "*:list")
)

// RoleResolver maps a role name, as carried in a token, to its profile.
type RoleResolver[U any] struct {
	RoleOf   func(U) string
	profiles map[string]Profile
}

// NewRoleResolver knows the admin, accountant and viewer roles.
func NewRoleResolver[U any](roleOf func(U) string) *RoleResolver[U] {
	return &RoleResolver[U]{
		RoleOf: roleOf,
		profiles: map[string]Profile{
			ProfileAdmin.Name():      ProfileAdmin,
			ProfileAccountant.Name(): ProfileAccountant,
			ProfileViewer.Name():     ProfileViewer,
		},
	}
}

// Resolve returns nil for unknown roles.
func (r *RoleResolver[U]) Resolve(_ context.Context, user U) (Profile, error) {
	return r.profiles[r.RoleOf(user)], nil
}
