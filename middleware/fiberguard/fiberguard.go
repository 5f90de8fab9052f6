package fiberguard

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	guard "github.com/goliatone/go-guard"
)

// Config defines the config for the middleware.
type Config struct {
	// Guard makes the decisions. Required.
	Guard *guard.Guard

	// Next defines a function to skip this middleware when returned true.
	Next func(c *fiber.Ctx) bool

	// LoadingHandler responds while the session is not settled. The
	// default answers 503 with a Retry-After header.
	LoadingHandler fiber.Handler

	// RetryAfter is sent by the default LoadingHandler.
	RetryAfter time.Duration

	// SessionKey is the locals key for the session snapshot.
	SessionKey string

	// DecisionKey is the locals key for the guard decision.
	DecisionKey string
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	RetryAfter:  time.Second,
	SessionKey:  guard.SessionLocalsKey,
	DecisionKey: guard.DecisionLocalsKey,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = ConfigDefault.RetryAfter
	}

	if cfg.SessionKey == "" {
		cfg.SessionKey = ConfigDefault.SessionKey
	}

	if cfg.DecisionKey == "" {
		cfg.DecisionKey = ConfigDefault.DecisionKey
	}

	if cfg.LoadingHandler == nil {
		retryAfter := strconv.Itoa(max(int(cfg.RetryAfter/time.Second), 1))
		cfg.LoadingHandler = func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusServiceUnavailable).SendString("Loading session...")
		}
	}

	return cfg
}

// New creates a new middleware handler
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	if cfg.Guard == nil {
		panic("fiberguard: Guard is required")
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		session, decision := cfg.Guard.Check(c.OriginalURL())

		c.Locals(cfg.SessionKey, session)
		c.Locals(cfg.DecisionKey, decision)

		switch decision.State {
		case guard.GuardAllowed:
			return c.Next()
		case guard.GuardInitializing:
			return cfg.LoadingHandler(c)
		default:
			return c.Redirect(decision.Intent.Target, guard.RedirectStatus(c.Method()))
		}
	}
}

// SessionFromLocals returns the session stored by the middleware.
func SessionFromLocals(c *fiber.Ctx, key ...string) (guard.Session, bool) {
	k := guard.SessionLocalsKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	session, ok := c.Locals(k).(guard.Session)
	return session, ok
}
