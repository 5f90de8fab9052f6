package guard

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// CategoryKind tags the RouteCategory variant.
type CategoryKind string

const (
	KindPublic           CategoryKind = "public"
	KindAuthenticatedAny CategoryKind = "authenticated"
	KindRoleGated        CategoryKind = "role"
	KindPermissionGated  CategoryKind = "permission"
)

// RouteCategory is the static classification of a path. Roles is only set
// for KindRoleGated and Permissions only for KindPermissionGated.
type RouteCategory struct {
	Kind        CategoryKind `json:"kind"`
	Roles       []string     `json:"roles,omitempty"`
	Permissions []string     `json:"permissions,omitempty"`
}

// Public routes need no session
func Public() RouteCategory {
	return RouteCategory{Kind: KindPublic}
}

// AuthenticatedAny routes need any non anonymous session
func AuthenticatedAny() RouteCategory {
	return RouteCategory{Kind: KindAuthenticatedAny}
}

// RoleGated routes need the session role to be one of roles. RoleAny
// accepts every authenticated role.
func RoleGated(roles ...string) RouteCategory {
	return RouteCategory{Kind: KindRoleGated, Roles: slices.Clone(roles)}
}

// PermissionGated routes need the session permissions to intersect perms.
func PermissionGated(perms ...string) RouteCategory {
	return RouteCategory{Kind: KindPermissionGated, Permissions: slices.Clone(perms)}
}

func (c RouteCategory) IsPublic() bool {
	return c.Kind == KindPublic
}

// Equal reports whether both categories have the same kind and sets.
func (c RouteCategory) Equal(other RouteCategory) bool {
	return c.Kind == other.Kind &&
		slices.Equal(c.Roles, other.Roles) &&
		slices.Equal(c.Permissions, other.Permissions)
}

func (c RouteCategory) rank() int {
	switch c.Kind {
	case KindPublic:
		return 0
	case KindAuthenticatedAny:
		return 1
	default:
		return 2
	}
}

func (c RouteCategory) String() string {
	switch c.Kind {
	case KindRoleGated:
		return fmt.Sprintf("role%v", c.Roles)
	case KindPermissionGated:
		return fmt.Sprintf("permission%v", c.Permissions)
	default:
		return string(c.Kind)
	}
}

// Validate will run validation rules
func (c RouteCategory) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kind,
			validation.Required,
			validation.In(KindPublic, KindAuthenticatedAny, KindRoleGated, KindPermissionGated),
		),
		validation.Field(&c.Roles, validation.By(requiredSetFor(c.Kind == KindRoleGated))),
		validation.Field(&c.Permissions, validation.By(requiredSetFor(c.Kind == KindPermissionGated))),
	)
}

func requiredSetFor(gated bool) validation.RuleFunc {
	return func(value any) error {
		if !gated {
			return nil
		}
		set, _ := value.([]string)
		if len(set) == 0 {
			return errors.New("cannot be blank")
		}
		for _, v := range set {
			if strings.TrimSpace(v) == "" {
				return errors.New("cannot contain blank values")
			}
		}
		return nil
	}
}

// RouteRule maps a path prefix to a category.
type RouteRule struct {
	Prefix   string        `json:"prefix"`
	Category RouteCategory `json:"category"`
}

// Validate will run validation rules
func (r RouteRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prefix, validation.Required, validation.By(validatePrefix)),
		validation.Field(&r.Category),
	)
}

func validatePrefix(value any) error {
	prefix, _ := value.(string)
	if !strings.HasPrefix(prefix, "/") {
		return errors.New("must start with /")
	}
	if prefix != "/" && path.Clean(prefix) != prefix {
		return errors.New("must be a clean path without trailing slash")
	}
	return nil
}

// Matches reports whether p equals the prefix or sits below it.
func (r RouteRule) Matches(p string) bool {
	return matchesPrefix(p, r.Prefix)
}

func matchesPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// RouteClassifier maps paths to categories with an ordered rule table;
// the first matching rule wins and unmatched paths are AuthenticatedAny.
type RouteClassifier struct {
	rules []RouteRule
}

// NewRouteClassifier validates rules and returns a classifier. Rules
// that can never match because an earlier rule covers them are rejected,
// so carve-outs must be listed before their parent prefix.
func NewRouteClassifier(rules []RouteRule) (*RouteClassifier, error) {
	table := make([]RouteRule, 0, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, withMetadata(ErrInvalidRouteTable, map[string]any{
				"index":  i,
				"prefix": rule.Prefix,
				"error":  err.Error(),
			})
		}

		for j, earlier := range table {
			if earlier.Matches(rule.Prefix) {
				return nil, withMetadata(ErrShadowedRoute, map[string]any{
					"index":        i,
					"prefix":       rule.Prefix,
					"shadowed_by":  earlier.Prefix,
					"shadow_index": j,
				})
			}
		}

		table = append(table, RouteRule{
			Prefix: rule.Prefix,
			Category: RouteCategory{
				Kind:        rule.Category.Kind,
				Roles:       slices.Clone(rule.Category.Roles),
				Permissions: slices.Clone(rule.Category.Permissions),
			},
		})
	}

	return &RouteClassifier{rules: table}, nil
}

// MustRouteClassifier is like NewRouteClassifier but panics on error.
func MustRouteClassifier(rules []RouteRule) *RouteClassifier {
	c, err := NewRouteClassifier(rules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the category of the given path or URL. When the raw,
// cleaned and decoded forms of the path classify differently the most
// restrictive category is returned, so an encoded or dotted path never
// reads as public while the router dispatches it to a gated handler.
func (c *RouteClassifier) Classify(rawPath string) RouteCategory {
	return strictest(c.Categories(rawPath))
}

func strictest(categories []RouteCategory) RouteCategory {
	if len(categories) == 0 {
		return AuthenticatedAny()
	}
	out := categories[0]
	for _, category := range categories[1:] {
		if category.rank() > out.rank() {
			out = category
		}
	}
	return out
}

// Categories returns the distinct categories of every form of rawPath:
// as dispatched, with dot segments cleaned, and percent decoded. A caller
// is allowed only if it satisfies all of them.
func (c *RouteClassifier) Categories(rawPath string) []RouteCategory {
	var out []RouteCategory
	for _, p := range pathForms(rawPath) {
		category := c.classifyForm(p)
		if !slices.ContainsFunc(out, category.Equal) {
			out = append(out, category)
		}
	}
	return out
}

// Match returns the first rule matching the normalized path.
func (c *RouteClassifier) Match(rawPath string) (RouteRule, bool) {
	return c.match(NormalizePath(rawPath))
}

func (c *RouteClassifier) classifyForm(p string) RouteCategory {
	if rule, ok := c.match(p); ok {
		return rule.Category
	}
	return AuthenticatedAny()
}

func (c *RouteClassifier) match(p string) (RouteRule, bool) {
	for _, rule := range c.rules {
		if rule.Matches(p) {
			return rule, true
		}
	}
	return RouteRule{}, false
}

// Rules returns a copy of the rule table.
func (c *RouteClassifier) Rules() []RouteRule {
	return slices.Clone(c.rules)
}

// NormalizePath strips query and fragment, decodes escapes and cleans dot
// segments. It is the canonical form used for return paths and entry
// path checks; classification also looks at the undecoded forms.
func NormalizePath(raw string) string {
	p := dispatchPath(raw)
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	return cleanPath(p)
}

// dispatchPath is the path as a router sees it: no query or fragment,
// escapes and dot segments untouched.
func dispatchPath(raw string) string {
	p := raw
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func cleanPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func pathForms(raw string) []string {
	dispatched := dispatchPath(raw)
	forms := []string{dispatched}
	for _, p := range []string{cleanPath(dispatched), NormalizePath(raw)} {
		if !slices.Contains(forms, p) {
			forms = append(forms, p)
		}
	}
	return forms
}

// DefaultRouteRules is the rule table of the property management app:
// public routes, then admin routes, then user routes.
func DefaultRouteRules() []RouteRule {
	return []RouteRule{
		// public
		{Prefix: "/", Category: Public()},
		{Prefix: DefaultLoginPath, Category: Public()},
		{Prefix: DefaultRegisterPath, Category: Public()},
		{Prefix: DefaultLogoutPath, Category: Public()},
		{Prefix: "/auth/forgot-password", Category: Public()},
		{Prefix: "/auth/reset-password", Category: Public()},
		{Prefix: "/pricing", Category: Public()},
		{Prefix: "/features", Category: Public()},
		{Prefix: "/about", Category: Public()},
		{Prefix: "/contact", Category: Public()},
		{Prefix: "/listings", Category: Public()},
		{Prefix: "/properties/public", Category: Public()},
		{Prefix: DefaultUnauthorizedPath, Category: Public()},

		// admin
		{Prefix: "/admin", Category: RoleGated(RoleAdmin)},

		// user
		{Prefix: DefaultHomePath, Category: RoleGated(RoleUser)},
		{Prefix: "/properties", Category: RoleGated(RoleUser)},
		{Prefix: "/tenants", Category: RoleGated(RoleUser)},
		{Prefix: "/leases", Category: RoleGated(RoleUser)},
		{Prefix: "/maintenance", Category: RoleGated(RoleUser)},
		{Prefix: "/payments", Category: RoleGated(RoleUser)},
		{Prefix: "/reports", Category: PermissionGated("reports:view")},
		{Prefix: "/billing", Category: PermissionGated("billing:manage")},
		{Prefix: "/profile", Category: RoleGated(RoleAny)},
		{Prefix: "/settings", Category: AuthenticatedAny()},
		{Prefix: "/subscription", Category: AuthenticatedAny()},
	}
}
