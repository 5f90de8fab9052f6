package fiberguard_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	guard "github.com/goliatone/go-guard"
	"github.com/goliatone/go-guard/middleware/fiberguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

func newGuard(t *testing.T, user *guard.User, bootstrap bool) *guard.Guard {
	t.Helper()

	store := guard.NewSessionStore(guard.WithStoreLogger(quietLogger{}))
	t.Cleanup(store.Dispose)

	if bootstrap {
		_, err := store.Bootstrap(context.Background(), guard.SessionSourceFunc(func(context.Context) (*guard.User, error) {
			return user, nil
		}))
		require.NoError(t, err)
	}

	g, err := guard.NewGuard(store, nil, guard.WithGuardLogger(quietLogger{}))
	require.NoError(t, err)
	return g
}

func newApp(g *guard.Guard) *fiber.App {
	app := fiber.New()
	app.Use(fiberguard.New(fiberguard.Config{Guard: g}))

	handler := func(c *fiber.Ctx) error {
		session, ok := fiberguard.SessionFromLocals(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString("hello " + string(session.Status))
	}

	app.Get("/pricing", handler)
	app.Get("/leases/:id", handler)
	app.Get("/admin/users", handler)
	app.Post("/admin/users", handler)
	return app
}

func TestFiberGuardAllowsPublicRoute(t *testing.T) {
	app := newApp(newGuard(t, nil, true))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pricing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello anonymous", string(body))
}

func TestFiberGuardAllowsAuthorizedUser(t *testing.T) {
	user := &guard.User{ID: "u1", Role: guard.RoleUser}
	app := newApp(newGuard(t, user, true))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/leases/12", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFiberGuardRedirectsAnonymousToLogin(t *testing.T) {
	app := newApp(newGuard(t, nil, true))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/leases/12?tab=payments", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login?redirect=/leases/12%3Ftab%3Dpayments", resp.Header.Get(fiber.HeaderLocation))
}

func TestFiberGuardRedirectsForbiddenPost(t *testing.T) {
	user := &guard.User{ID: "u1", Role: guard.RoleUser}
	app := newApp(newGuard(t, user, true))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/admin/users", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/unauthorized", resp.Header.Get(fiber.HeaderLocation))
}

func TestFiberGuardEncodedDotSegmentsStayGated(t *testing.T) {
	paths := []string{
		"/admin/%2e%2e/pricing",
		"/admin/%2E%2E/pricing",
		"/admin/../pricing",
	}

	newAdminApp := func(user *guard.User) *fiber.App {
		app := fiber.New()
		app.Use(fiberguard.New(fiberguard.Config{Guard: newGuard(t, user, true)}))
		app.Get("/admin/*", func(c *fiber.Ctx) error {
			return c.SendString("admin content")
		})
		return app
	}

	anonymous := newAdminApp(nil)
	member := newAdminApp(&guard.User{ID: "u1", Role: guard.RoleUser})

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			resp, err := anonymous.Test(httptest.NewRequest(http.MethodGet, p, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/auth/login?redirect=/pricing", resp.Header.Get(fiber.HeaderLocation))

			resp, err = member.Test(httptest.NewRequest(http.MethodGet, p, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/unauthorized", resp.Header.Get(fiber.HeaderLocation))
		})
	}
}

func TestFiberGuardLoadingBeforeBootstrap(t *testing.T) {
	app := newApp(newGuard(t, nil, false))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestFiberGuardNextSkips(t *testing.T) {
	g := newGuard(t, nil, false)

	app := fiber.New()
	app.Use(fiberguard.New(fiberguard.Config{
		Guard: g,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz"
		},
	}))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFiberGuardRequiresGuard(t *testing.T) {
	assert.Panics(t, func() {
		fiberguard.New()
	})
}
