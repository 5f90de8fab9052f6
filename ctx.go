package guard

import (
	"context"

	"github.com/goliatone/go-router"
)

// SessionLocalsKey is the router locals key the middleware stores the
// session snapshot under.
const SessionLocalsKey = "session"

// DecisionLocalsKey is the router locals key for the guard decision.
const DecisionLocalsKey = "guard_decision"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession sets the Session in the given context
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	return raw, ok
}

// UserFromContext returns the authenticated user stored in ctx.
func UserFromContext(ctx context.Context) (*User, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || !session.IsAuthenticated() {
		return nil, false
	}
	return session.User, true
}

// GetRouterSession extracts the Session from the router context
func GetRouterSession(ctx router.Context) (Session, bool) {
	raw := ctx.Locals(SessionLocalsKey)
	if raw == nil {
		return Session{}, false
	}
	session, ok := raw.(Session)
	return session, ok
}

// GetRouterDecision extracts the guard Decision from the router context
func GetRouterDecision(ctx router.Context) (Decision, bool) {
	raw := ctx.Locals(DecisionLocalsKey)
	if raw == nil {
		return Decision{}, false
	}
	decision, ok := raw.(Decision)
	return decision, ok
}

// CanFromRouter checks a permission against the session in the router context
func CanFromRouter(ctx router.Context, permission string) bool {
	session, ok := GetRouterSession(ctx)
	if !ok || !session.IsAuthenticated() {
		return false
	}
	if IsAdminRole(session.Role(), "") {
		return true
	}
	return session.User.HasPermission(permission)
}
