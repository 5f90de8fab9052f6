package guard_test

import (
	"context"
	"sync"
	"testing"

	guard "github.com/goliatone/go-guard"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// routerContext names the embedded interface so it does not clash with
// the Context method.
type routerContext = router.Context

// MockContext mocks the router.Context methods the guard handlers use.
// Calling any other method panics on the nil embedded interface.
type MockContext struct {
	routerContext
	mock.Mock
	NextCalled bool
}

var _ router.Context = (*MockContext)(nil)

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

// MockBackend implements guard.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Session(ctx context.Context, token string) (*guard.AuthResponse, error) {
	args := m.Called(ctx, token)
	resp, _ := args.Get(0).(*guard.AuthResponse)
	return resp, args.Error(1)
}

func (m *MockBackend) Login(ctx context.Context, msg guard.LoginMessage) (*guard.AuthResponse, error) {
	args := m.Called(ctx, msg)
	resp, _ := args.Get(0).(*guard.AuthResponse)
	return resp, args.Error(1)
}

func (m *MockBackend) Register(ctx context.Context, msg guard.RegisterMessage) (*guard.AuthResponse, error) {
	args := m.Called(ctx, msg)
	resp, _ := args.Get(0).(*guard.AuthResponse)
	return resp, args.Error(1)
}

func (m *MockBackend) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// MockNotifier implements guard.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n guard.Notification) {
	m.Called(ctx, n)
}

// recordingNavigator keeps every intent it was asked to navigate to.
type recordingNavigator struct {
	mu      sync.Mutex
	intents []guard.NavigationIntent
	err     error
}

func (r *recordingNavigator) Navigate(_ context.Context, intent guard.NavigationIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
	return r.err
}

func (r *recordingNavigator) Intents() []guard.NavigationIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]guard.NavigationIntent(nil), r.intents...)
}

// recordingSink keeps every activity event.
type recordingSink struct {
	mu     sync.Mutex
	events []guard.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event guard.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []guard.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]guard.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// testLogger routes package logs to t.Log.
type testLogger struct {
	t testing.TB
}

func (l testLogger) Debug(msg string, args ...any) { l.t.Log(append([]any{"[DBG]", msg}, args...)...) }
func (l testLogger) Info(msg string, args ...any)  { l.t.Log(append([]any{"[INF]", msg}, args...)...) }
func (l testLogger) Warn(msg string, args ...any)  { l.t.Log(append([]any{"[WRN]", msg}, args...)...) }
func (l testLogger) Error(msg string, args ...any) { l.t.Log(append([]any{"[ERR]", msg}, args...)...) }

var (
	adminUser = &guard.User{
		ID:    "4f3c1d1e-8a5b-4d2f-9c61-0b7e2f1a9d01",
		Name:  "Ada Admin",
		Email: "admin@example.com",
		Role:  guard.RoleAdmin,
	}
	managerUser = &guard.User{
		ID:          "0d9a6c52-3b7e-4e11-a2f4-5c8d7e6f1b02",
		Name:        "Max Manager",
		Email:       "manager@example.com",
		Role:        guard.RoleUser,
		Permissions: []string{"reports:view"},
	}
	viewerUser = &guard.User{
		ID:    "a1b2c3d4-0000-4000-8000-000000000003",
		Name:  "Vera Viewer",
		Email: "viewer@example.com",
		Role:  "viewer",
	}
)

func authenticated(user *guard.User) guard.Session {
	return guard.Session{Status: guard.SessionAuthenticated, User: user, Version: 2}
}

func anonymous() guard.Session {
	return guard.Session{Status: guard.SessionAnonymous, Version: 2}
}

func newStore(t testing.TB) *guard.SessionStore {
	t.Helper()
	store := guard.NewSessionStore(guard.WithStoreLogger(testLogger{t}))
	t.Cleanup(store.Dispose)
	return store
}

// bootstrapped returns a store settled on user, or anonymous for nil.
func bootstrapped(t testing.TB, user *guard.User) *guard.SessionStore {
	t.Helper()
	store := newStore(t)
	_, err := store.Bootstrap(context.Background(), guard.SessionSourceFunc(func(context.Context) (*guard.User, error) {
		return user, nil
	}))
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return store
}

func newGuard(t testing.TB, store *guard.SessionStore, opts ...guard.GuardOption) *guard.Guard {
	t.Helper()
	opts = append([]guard.GuardOption{guard.WithGuardLogger(testLogger{t})}, opts...)
	g, err := guard.NewGuard(store, nil, opts...)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return g
}
