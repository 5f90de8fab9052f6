package guard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-router"
)

// MiddlewareConfig customizes Guard.Middleware.
type MiddlewareConfig struct {
	// LoadingView is rendered while the session is not settled
	LoadingView string
	// RetryAfter is sent with the loading response
	RetryAfter time.Duration
	// Filter skips the guard when it returns true
	Filter func(router.Context) bool
}

// MiddlewareOption customizes the middleware configuration.
type MiddlewareOption func(*MiddlewareConfig)

// WithLoadingView sets the view rendered while initializing.
func WithLoadingView(view string) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if view != "" {
			c.LoadingView = view
		}
	}
}

// WithRetryAfter sets the Retry-After sent while initializing.
func WithRetryAfter(d time.Duration) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if d > 0 {
			c.RetryAfter = d
		}
	}
}

// WithFilter skips the guard for requests matching fn, e.g. static assets.
func WithFilter(fn func(router.Context) bool) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.Filter = fn
	}
}

// Middleware gates go-router routes with the guard decision table. The
// session snapshot and the decision are stored in the context locals. A
// request arriving before bootstrap resolves gets the loading view, never
// the protected handler.
func (g *Guard) Middleware(opts ...MiddlewareOption) router.MiddlewareFunc {
	cfg := MiddlewareConfig{
		LoadingView: "loading",
		RetryAfter:  time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			session, decision := g.Check(ctx.OriginalURL())

			ctx.Locals(SessionLocalsKey, session)
			ctx.Locals(DecisionLocalsKey, decision)

			switch decision.State {
			case GuardAllowed:
				return ctx.Next()

			case GuardInitializing:
				seconds := int(cfg.RetryAfter.Round(time.Second) / time.Second)
				ctx.SetHeader("Retry-After", strconv.Itoa(max(seconds, 1)))
				return ctx.Status(http.StatusServiceUnavailable).Render(cfg.LoadingView, router.ViewContext{
					"path":  decision.Path,
					"state": decision.State,
				})

			default:
				g.logger.Debug("guard redirect",
					"path", decision.Path,
					"state", decision.State,
					"target", decision.Intent.Target,
				)
				return ctx.Redirect(decision.Intent.Target, RedirectStatus(ctx.Method()))
			}
		}
	}
}

// RedirectStatus is 302 for GET and HEAD requests and 303 otherwise, so a
// redirected form post is followed with a GET.
func RedirectStatus(method string) int {
	if method == string(router.GET) || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
