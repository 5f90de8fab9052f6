package guard

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SessionStatus is the lifecycle status of the current session.
type SessionStatus string

const (
	// SessionUnknown is the status before the first bootstrap completes
	SessionUnknown SessionStatus = "unknown"
	// SessionLoading is the status while bootstrap is in flight
	SessionLoading SessionStatus = "loading"
	// SessionAuthenticated means a user is present
	SessionAuthenticated SessionStatus = "authenticated"
	// SessionAnonymous means nobody is signed in
	SessionAnonymous SessionStatus = "anonymous"
)

// IsValid checks if the status is one of the predefined statuses
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionUnknown, SessionLoading, SessionAuthenticated, SessionAnonymous:
		return true
	default:
		return false
	}
}

// IsSettled reports whether authorization can be decided against s.
func (s SessionStatus) IsSettled() bool {
	return s == SessionAuthenticated || s == SessionAnonymous
}

const bootstrapKey = "bootstrap"

// Session is an immutable snapshot of the session held by a SessionStore.
// User is non nil if and only if Status is SessionAuthenticated.
type Session struct {
	Status    SessionStatus `json:"status"`
	User      *User         `json:"user,omitempty"`
	Version   uint64        `json:"version"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (s Session) IsAuthenticated() bool {
	return s.Status == SessionAuthenticated && s.User != nil
}

func (s Session) IsAnonymous() bool {
	return s.Status == SessionAnonymous
}

func (s Session) IsSettled() bool {
	return s.Status.IsSettled()
}

// Role returns the user's role, or "" for anonymous sessions.
func (s Session) Role() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.User.Role
}

func (s Session) String() string {
	user := "<nil>"
	if s.User != nil {
		user = s.User.ID
	}
	return fmt.Sprintf("status=%s user=%s role=%s version=%d", s.Status, user, s.Role(), s.Version)
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// StoreOption customizes store construction.
type StoreOption func(*SessionStore)

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreActivitySink sets the ActivitySink used to publish session events.
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SessionStore is the single source of truth for who is calling. Create one
// per application instance, Bootstrap it once, and Dispose it on shutdown.
//
// Status transitions are only performed by the AuthGateway; readers take
// snapshots or Subscribe to changes.
type SessionStore struct {
	mu           sync.RWMutex
	session      Session
	machine      *sessionStateMachine
	listeners    map[uint64]SessionListener
	nextListener uint64

	flight          singleflight.Group
	bootstrapped    bool
	bootstrapResult Session

	lifetime context.Context
	cancel   context.CancelFunc
	disposed bool

	now      func() time.Time
	logger   Logger
	activity ActivitySink
}

// NewSessionStore returns a store in the unknown status.
func NewSessionStore(opts ...StoreOption) *SessionStore {
	lifetime, cancel := context.WithCancel(context.Background())
	s := &SessionStore{
		session:   Session{Status: SessionUnknown},
		machine:   newSessionStateMachine(),
		listeners: map[uint64]SessionListener{},
		lifetime:  lifetime,
		cancel:    cancel,
		now:       time.Now,
		logger:    defLogger{},
		activity:  noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Snapshot returns a copy of the current session.
func (s *SessionStore) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// Subscribe registers a listener for committed changes. The returned func
// removes it.
func (s *SessionStore) Subscribe(listener SessionListener) func() {
	if listener == nil {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return func() {}
	}

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Bootstrap discovers the session that is valid at startup. Only the first
// call reaches source; concurrent callers share that call and later callers
// get the memoized result. Source failures resolve to anonymous and are
// only logged. If ctx ends first the caller gets a cancellation error while
// the shared bootstrap keeps running on the store's lifetime.
func (s *SessionStore) Bootstrap(ctx context.Context, source SessionSource) (Session, error) {
	s.mu.RLock()
	disposed, done, result := s.disposed, s.bootstrapped, s.bootstrapResult
	s.mu.RUnlock()

	if disposed {
		return Session{}, ErrStoreDisposed
	}

	if done {
		return result.clone(), nil
	}

	ch := s.flight.DoChan(bootstrapKey, func() (any, error) {
		return s.runBootstrap(source)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return s.Snapshot(), res.Err
		}
		return res.Val.(Session).clone(), nil
	case <-ctx.Done():
		return s.Snapshot(), newCancelledError(ctx.Err())
	}
}

// IsBootstrapped reports whether bootstrap has resolved.
func (s *SessionStore) IsBootstrapped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapped
}

func (s *SessionStore) runBootstrap(source SessionSource) (Session, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Session{}, ErrStoreDisposed
	}

	if s.bootstrapped {
		result := s.bootstrapResult.clone()
		s.mu.Unlock()
		return result, nil
	}

	if s.session.IsSettled() {
		// an auth operation settled the session before bootstrap ran
		s.bootstrapped = true
		s.bootstrapResult = s.session.clone()
		result := s.bootstrapResult.clone()
		s.mu.Unlock()
		s.logger.Debug("bootstrap skipped, session already settled", "status", result.Status)
		return result, nil
	}

	from := s.session.Status
	loading, _, err := s.commitLocked(SessionLoading, nil)
	if err != nil {
		s.mu.Unlock()
		return Session{}, err
	}
	lifetime := s.lifetime
	s.mu.Unlock()

	s.publish(from, loading)

	user, fetchErr := fetchSession(lifetime, source)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Session{}, ErrStoreDisposed
	}

	from = s.session.Status
	var (
		changed bool
		next    Session
	)

	if s.session.Version != loading.Version {
		s.logger.Debug("bootstrap result superseded by a settled auth operation", "status", s.session.Status)
		next = s.session.clone()
	} else {
		target := SessionAnonymous
		if fetchErr == nil && user != nil {
			target = SessionAuthenticated
		}

		if fetchErr != nil {
			s.logger.Info("bootstrap resolved anonymous", "error", fetchErr)
		}

		next, changed, err = s.commitLocked(target, user)
		if err != nil {
			s.logger.Error("bootstrap returned an unusable user, resolving anonymous", "error", err)
			next, changed, _ = s.commitLocked(SessionAnonymous, nil)
		}
	}

	s.bootstrapped = true
	s.bootstrapResult = next.clone()
	s.mu.Unlock()

	if changed {
		s.publish(from, next)
	}

	recordActivity(context.Background(), s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventBootstrapResolve,
		UserID:    userID(next.User),
		ToStatus:  next.Status,
		Metadata:  errorMetadata(fetchErr),
	})

	return next, nil
}

func fetchSession(ctx context.Context, source SessionSource) (user *User, err error) {
	if source == nil {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			user = nil
			err = fmt.Errorf("session source panic: %v", r)
		}
	}()

	return source.FetchSession(ctx)
}

// setAuthenticated replaces the current user atomically.
func (s *SessionStore) setAuthenticated(user *User) (Session, error) {
	return s.transition(SessionAuthenticated, user)
}

// setAnonymous clears the current user.
func (s *SessionStore) setAnonymous() (Session, error) {
	return s.transition(SessionAnonymous, nil)
}

func (s *SessionStore) transition(to SessionStatus, user *User) (Session, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Session{}, ErrStoreDisposed
	}

	from := s.session.Status
	next, changed, err := s.commitLocked(to, user)
	s.mu.Unlock()

	if err != nil {
		return next, err
	}

	if changed {
		s.publish(from, next)
	}

	return next, nil
}

// PatchUser shallow merges patch into the authenticated user without
// changing the status. It reports false when nothing was applied.
func (s *SessionStore) PatchUser(patch UserPatch) (Session, bool) {
	s.mu.Lock()
	if s.disposed || !s.session.IsAuthenticated() || patch.IsEmpty() {
		current := s.session.clone()
		s.mu.Unlock()
		return current, false
	}

	s.session = Session{
		Status:    SessionAuthenticated,
		User:      patch.apply(s.session.User),
		Version:   s.session.Version + 1,
		UpdatedAt: s.now(),
	}
	next := s.session.clone()
	s.mu.Unlock()

	s.publish(SessionAuthenticated, next)
	return next, true
}

// commitLocked must be called with mu held. It returns a snapshot of the
// committed session and whether anything changed.
func (s *SessionStore) commitLocked(to SessionStatus, user *User) (Session, bool, error) {
	from := s.session.Status
	if err := s.machine.validate(from, to, user); err != nil {
		return s.session.clone(), false, err
	}

	if s.machine.isNoop(from, to) {
		return s.session.clone(), false, nil
	}

	next := Session{
		Status:    to,
		Version:   s.session.Version + 1,
		UpdatedAt: s.now(),
	}
	if to == SessionAuthenticated {
		next.User = user.Clone()
	}

	s.session = next
	return next.clone(), true, nil
}

func (s *SessionStore) publish(from SessionStatus, next Session) {
	s.mu.RLock()
	listeners := make([]SessionListener, 0, len(s.listeners))
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.RUnlock()

	if from != next.Status {
		recordActivity(context.Background(), s.activity, s.logger, ActivityEvent{
			EventType:  ActivityEventSessionChanged,
			UserID:     userID(next.User),
			FromStatus: from,
			ToStatus:   next.Status,
		})
	}

	for _, listener := range listeners {
		listener(next.clone())
	}
}

// Dispose ends the store lifecycle: in flight bootstrap is cancelled,
// listeners are dropped and later mutations fail with ErrStoreDisposed.
func (s *SessionStore) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}

	s.disposed = true
	s.cancel()
	s.listeners = map[uint64]SessionListener{}
}

// IsDisposed reports whether Dispose was called.
func (s *SessionStore) IsDisposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

func userID(u *User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func errorMetadata(err error) map[string]any {
	if err == nil {
		return nil
	}
	return map[string]any{"error": err.Error()}
}
