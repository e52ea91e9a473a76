package auth

// Built-in capability tokens for the directory's own administration surface.
// Application services define their own permission vocabulary; these only
// guard the management API itself.
const (
	PermManageOrganizations = "directory:organizations:manage"
	PermManageServices      = "directory:services:manage"
	PermManageRoles         = "directory:roles:manage"
	PermManageUsers         = "directory:users:manage"
	PermManageSubscriptions = "directory:subscriptions:manage"
	PermRevokeTokens        = "tokens:revoke"
)

// BuiltinPermissions lists every capability the management API understands,
// for seeding administrative roles.
var BuiltinPermissions = []string{
	PermManageOrganizations,
	PermManageServices,
	PermManageRoles,
	PermManageUsers,
	PermManageSubscriptions,
	PermRevokeTokens,
}
