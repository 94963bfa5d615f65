package rbac

import "slices"

// Admin API roles. Both are carried in issued tokens, so renaming one invalidates live tokens.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Valid reports whether role may be issued a token.
func Valid(role string) bool { return role == RoleAdmin || role == RoleOperator }

// Allows reports whether role satisfies a route's role list.
func Allows(role string, allowed ...string) bool {
	if !Valid(role) {
		return false
	}
	return IsAdmin(role) || slices.Contains(allowed, role)
}
