package guard

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// User is the authenticated caller as reported by the auth backend
type User struct {
	ID               string         `json:"id"`
	Name             string         `json:"name,omitempty"`
	Email            string         `json:"email,omitempty"`
	Role             string         `json:"role,omitempty"`
	Permissions      []string       `json:"permissions,omitempty"`
	SubscriptionPlan string         `json:"subscription_plan,omitempty"`
	Profile          map[string]any `json:"profile,omitempty"`
}

// UUID parses the user ID as a UUID.
func (u *User) UUID() (uuid.UUID, error) {
	return uuid.Parse(u.ID)
}

// HasPermission checks the user's permission set.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Permissions, permission)
}

// HasAnyPermission reports whether the permission sets intersect
func (u *User) HasAnyPermission(permissions []string) bool {
	if u == nil {
		return false
	}
	for _, p := range permissions {
		if slices.Contains(u.Permissions, p) {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or maps with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	c.Profile = maps.Clone(u.Profile)
	return &c
}

// UserPatch holds the fields PatchUser merges into the current user. Nil
// fields are left untouched; Profile keys are merged one by one.
type UserPatch struct {
	Name             *string        `json:"name,omitempty"`
	Email            *string        `json:"email,omitempty"`
	Role             *string        `json:"role,omitempty"`
	Permissions      []string       `json:"permissions,omitempty"`
	SubscriptionPlan *string        `json:"subscription_plan,omitempty"`
	Profile          map[string]any `json:"profile,omitempty"`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil &&
		p.Email == nil &&
		p.Role == nil &&
		p.Permissions == nil &&
		p.SubscriptionPlan == nil &&
		len(p.Profile) == 0
}

func (p UserPatch) apply(u *User) *User {
	next := u.Clone()
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Email != nil {
		next.Email = *p.Email
	}
	if p.Role != nil {
		next.Role = *p.Role
	}
	if p.Permissions != nil {
		next.Permissions = slices.Clone(p.Permissions)
	}
	if p.SubscriptionPlan != nil {
		next.SubscriptionPlan = *p.SubscriptionPlan
	}
	if len(p.Profile) > 0 {
		if next.Profile == nil {
			next.Profile = make(map[string]any, len(p.Profile))
		}
		maps.Copy(next.Profile, p.Profile)
	}
	return next
}
