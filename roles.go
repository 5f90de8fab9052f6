package guard

const (
	// RoleAdmin satisfies every role and permission gate
	RoleAdmin = "admin"
	// RoleUser is the default role for property managers
	RoleUser = "user"
	// RoleAny is the wildcard accepted by RoleGated categories
	RoleAny = "any"
)

// IsAdminRole reports whether role is the administrator role for cfg.
func IsAdminRole(role, adminRole string) bool {
	if adminRole == "" {
		adminRole = RoleAdmin
	}
	return role != "" && role == adminRole
}

// RoleHomes maps a role to the path its users land on.
type RoleHomes map[string]string

// HomeFor returns the landing page for role, falling back to def.
func (h RoleHomes) HomeFor(role, def string) string {
	if h != nil {
		if home, ok := h[role]; ok && home != "" {
			return home
		}
	}
	return def
}
