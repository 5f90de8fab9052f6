package guard

import (
	"github.com/goliatone/go-router"
)

var TemplateUserKey = "current_user"

// TemplateSessionKey is the global the session snapshot is exposed under.
var TemplateSessionKey = "current_session"

// TemplateHelpers returns helper functions and data for view engines
// (pongo2/django) that gate markup on the current user.
//
// In templates, you can then use:
//
//	{% if is_authenticated(current_user) %}
//	{% if has_role(current_user, "admin") %}
//	{% if has_permission(current_user, "reports:view") %}
//	<a href="{{ role_home(current_user) }}">Home</a>
func TemplateHelpers() map[string]any {
	return TemplateHelpersWithConfig(GuardConfigFrom(nil))
}

// TemplateHelpersWithConfig is TemplateHelpers using cfg for admin role
// and home paths.
func TemplateHelpersWithConfig(cfg GuardConfig) map[string]any {
	cfg = cfg.withDefaults()
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"has_permission":   hasPermission,
		"is_admin": func(user any) bool {
			u := asUser(user)
			return u != nil && IsAdminRole(u.Role, cfg.AdminRole)
		},
		"role_home": func(user any) string {
			u := asUser(user)
			switch {
			case u == nil:
				return cfg.LoginPath
			case IsAdminRole(u.Role, cfg.AdminRole):
				return cfg.AdminHomePath
			default:
				return cfg.RoleHomes.HomeFor(u.Role, cfg.HomePath)
			}
		},

		"roles": map[string]string{
			"admin": cfg.AdminRole,
			"user":  RoleUser,
		},
	}
}

// TemplateHelpersWithSession returns template helpers with the session
// user set as current_user.
func TemplateHelpersWithSession(session Session) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateSessionKey] = session
	if session.IsAuthenticated() {
		helpers[TemplateUserKey] = session.User
	}
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with the session the
// guard middleware stored in the router context.
func TemplateHelpersWithRouter(ctx router.Context) map[string]any {
	if session, ok := GetRouterSession(ctx); ok {
		return TemplateHelpersWithSession(session)
	}
	return TemplateHelpers()
}

// MergeTemplateData adds the session helpers to data, keeping keys the
// handler already set.
func MergeTemplateData(ctx router.Context, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	for k, v := range TemplateHelpersWithRouter(ctx) {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func asUser(user any) *User {
	switch u := user.(type) {
	case *User:
		return u
	case User:
		return &u
	case Session:
		if u.IsAuthenticated() {
			return u.User
		}
		return nil
	case map[string]any:
		// JSON decoded users
		id, _ := u["id"].(string)
		if id == "" {
			return nil
		}
		role, _ := u["role"].(string)
		out := &User{ID: id, Role: role}
		switch perms := u["permissions"].(type) {
		case []string:
			out.Permissions = perms
		case []any:
			for _, p := range perms {
				if s, ok := p.(string); ok {
					out.Permissions = append(out.Permissions, s)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// isAuthenticated checks if the provided user object is not nil
func isAuthenticated(user any) bool {
	return asUser(user) != nil
}

// hasRole checks if the user has the specified role
func hasRole(user any, role string) bool {
	u := asUser(user)
	return u != nil && u.Role == role
}

func hasPermission(user any, permission string) bool {
	return asUser(user).HasPermission(permission)
}
