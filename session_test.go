package guard_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	guard "github.com/goliatone/go-guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionStoreStartsUnknown(t *testing.T) {
	store := newStore(t)

	session := store.Snapshot()
	assert.Equal(t, guard.SessionUnknown, session.Status)
	assert.Nil(t, session.User)
	assert.Equal(t, uint64(0), session.Version)
	assert.False(t, session.IsSettled())
	assert.False(t, store.IsBootstrapped())
}

func TestBootstrapAuthenticated(t *testing.T) {
	store := newStore(t)

	var seen []guard.SessionStatus
	store.Subscribe(func(s guard.Session) {
		seen = append(seen, s.Status)
	})

	session, err := store.Bootstrap(context.Background(), guard.SessionSourceFunc(func(context.Context) (*guard.User, error) {
		return managerUser, nil
	}))
	require.NoError(t, err)

	assert.Equal(t, guard.SessionAuthenticated, session.Status)
	require.NotNil(t, session.User)
	assert.Equal(t, managerUser.ID, session.User.ID)
	assert.Equal(t, uint64(2), session.Version)
	assert.Equal(t, []guard.SessionStatus{guard.SessionLoading, guard.SessionAuthenticated}, seen)
	assert.True(t, store.IsBootstrapped())
}

func TestBootstrapFailureResolvesAnonymous(t *testing.T) {
	tests := []struct {
		name   string
		source guard.SessionSourceFunc
	}{
		{"error", func(context.Context) (*guard.User, error) { return nil, errors.New("connection refused") }},
		{"no session", func(context.Context) (*guard.User, error) { return nil, nil }},
		{"user without id", func(context.Context) (*guard.User, error) { return &guard.User{Name: "ghost"}, nil }},
		{"panic", func(context.Context) (*guard.User, error) { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)

			session, err := store.Bootstrap(context.Background(), tt.source)
			require.NoError(t, err)
			assert.Equal(t, guard.SessionAnonymous, session.Status)
			assert.Nil(t, session.User)
			assert.Equal(t, guard.SessionAnonymous, store.Snapshot().Status)
		})
	}
}

func TestBootstrapConcurrentCallersShareOneFetch(t *testing.T) {
	store := newStore(t)

	var calls atomic.Int32
	release := make(chan struct{})
	source := guard.SessionSourceFunc(func(context.Context) (*guard.User, error) {
		calls.Add(1)
		<-release
		return adminUser, nil
	})

	const callers = 8
	results := make([]guard.Session, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Bootstrap(context.Background(), source)
		}(i)
	}

	require.Eventually(t, func() bool {
		return store.Snapshot().Status == guard.SessionLoading
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, guard.SessionAuthenticated, results[i].Status)
		assert.Equal(t, results[0].Version, results[i].Version)
	}

	// later callers get the memoized result
	session, err := store.Bootstrap(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, guard.SessionAuthenticated, session.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBootstrapCallerCancellation(t *testing.T) {
	store := newStore(t)

	var calls atomic.Int32
	release := make(chan struct{})
	source := guard.SessionSourceFunc(func(context.Context) (*guard.User, error) {
		calls.Add(1)
		<-release
		return managerUser, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := store.Bootstrap(ctx, source)
		done <- err
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.True(t, guard.IsCancelledError(err))
	assert.Equal(t, guard.SessionLoading, store.Snapshot().Status)

	close(release)

	session, err := store.Bootstrap(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, guard.SessionAuthenticated, session.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDisposeCancelsInFlightBootstrap(t *testing.T) {
	store := guard.NewSessionStore(guard.WithStoreLogger(testLogger{t}))

	started := make(chan struct{})
	source := guard.SessionSourceFunc(func(ctx context.Context) (*guard.User, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	done := make(chan error, 1)
	go func() {
		_, err := store.Bootstrap(context.Background(), source)
		done <- err
	}()

	<-started
	store.Dispose()

	err := <-done
	require.Error(t, err)
	assert.True(t, guard.IsStoreDisposedError(err))
	assert.True(t, store.IsDisposed())
}

func TestDisposedStoreRejectsWork(t *testing.T) {
	store := bootstrapped(t, managerUser)

	var notified int
	store.Subscribe(func(guard.Session) { notified++ })

	store.Dispose()
	store.Dispose()

	_, err := store.Bootstrap(context.Background(), nil)
	assert.True(t, guard.IsStoreDisposedError(err))

	name := "after"
	_, ok := store.PatchUser(guard.UserPatch{Name: &name})
	assert.False(t, ok)
	assert.Zero(t, notified)

	unsubscribe := store.Subscribe(func(guard.Session) { notified++ })
	unsubscribe()
}

func TestPatchUser(t *testing.T) {
	store := bootstrapped(t, managerUser)
	before := store.Snapshot()

	var seen []guard.Session
	unsubscribe := store.Subscribe(func(s guard.Session) { seen = append(seen, s) })
	defer unsubscribe()

	name := "Max Power"
	session, ok := store.PatchUser(guard.UserPatch{
		Name:    &name,
		Profile: map[string]any{"timezone": "Europe/Madrid"},
	})
	require.True(t, ok)

	assert.Equal(t, guard.SessionAuthenticated, session.Status)
	assert.Equal(t, before.Version+1, session.Version)
	assert.Equal(t, "Max Power", session.User.Name)
	assert.Equal(t, managerUser.Email, session.User.Email)
	assert.Equal(t, managerUser.Role, session.User.Role)
	assert.Equal(t, "Europe/Madrid", session.User.Profile["timezone"])
	require.Len(t, seen, 1)
	assert.Equal(t, session.Version, seen[0].Version)

	// the shared fixture is never mutated
	assert.Equal(t, "Max Manager", managerUser.Name)
}

func TestPatchUserNoop(t *testing.T) {
	store := bootstrapped(t, nil)

	name := "nobody"
	session, ok := store.PatchUser(guard.UserPatch{Name: &name})
	assert.False(t, ok)
	assert.Equal(t, guard.SessionAnonymous, session.Status)

	store = bootstrapped(t, managerUser)
	version := store.Snapshot().Version
	_, ok = store.PatchUser(guard.UserPatch{})
	assert.False(t, ok)
	assert.Equal(t, version, store.Snapshot().Version)
}

func TestSnapshotIsIsolated(t *testing.T) {
	store := bootstrapped(t, managerUser)

	snap := store.Snapshot()
	snap.User.Permissions[0] = "billing:manage"
	snap.User.Role = guard.RoleAdmin

	fresh := store.Snapshot()
	assert.Equal(t, []string{"reports:view"}, fresh.User.Permissions)
	assert.Equal(t, guard.RoleUser, fresh.User.Role)
}

func TestUnsubscribe(t *testing.T) {
	store := bootstrapped(t, managerUser)

	var count int
	unsubscribe := store.Subscribe(func(guard.Session) { count++ })

	name := "one"
	store.PatchUser(guard.UserPatch{Name: &name})
	unsubscribe()
	name = "two"
	store.PatchUser(guard.UserPatch{Name: &name})

	assert.Equal(t, 1, count)
}

func TestSessionHelpers(t *testing.T) {
	s := authenticated(managerUser)
	assert.True(t, s.IsAuthenticated())
	assert.False(t, s.IsAnonymous())
	assert.Equal(t, guard.RoleUser, s.Role())
	assert.Contains(t, s.String(), managerUser.ID)

	a := anonymous()
	assert.False(t, a.IsAuthenticated())
	assert.True(t, a.IsAnonymous())
	assert.Empty(t, a.Role())

	assert.True(t, guard.SessionLoading.IsValid())
	assert.False(t, guard.SessionStatus("bogus").IsValid())
	assert.False(t, guard.SessionLoading.IsSettled())
}

func TestSessionJSONShape(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	raw, err := json.Marshal(guard.Session{Status: guard.SessionAnonymous, Version: 3, UpdatedAt: now})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"anonymous","version":3,"updated_at":"2024-05-01T12:00:00Z"}`, string(raw))

	raw, err = json.Marshal(guard.Session{Status: guard.SessionUnknown})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"unknown","version":0,"updated_at":"0001-01-01T00:00:00Z"}`, string(raw))
}
