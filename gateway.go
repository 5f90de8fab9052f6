package guard

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LoginSuccessMessage    = "Signed in successfully"
	RegisterSuccessMessage = "Account created successfully"
	LogoutSuccessMessage   = "You have been signed out"
)

// AuthResult is the outcome of a login, register or logout call. Error is
// the user facing message, Err the underlying error.
type AuthResult struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	User    *User   `json:"user,omitempty"`
	Session Session `json:"-"`
	Err     error   `json:"-"`
}

// GatewayOption customizes gateway construction.
type GatewayOption func(*AuthGateway)

// WithGatewayConfig sets the Config (timeout, phone region, backend URL).
func WithGatewayConfig(cfg Config) GatewayOption {
	return func(g *AuthGateway) {
		if cfg != nil {
			g.cfg = cfg
		}
	}
}

// WithTokenStore sets where bearer credentials are kept.
func WithTokenStore(tokens TokenStore) GatewayOption {
	return func(g *AuthGateway) {
		if tokens != nil {
			g.tokens = tokens
		}
	}
}

// WithNotifier sets the notifier used to surface results.
func WithNotifier(n Notifier) GatewayOption {
	return func(g *AuthGateway) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithGatewayLogger overrides the logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *AuthGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGatewayActivitySink records login, register and logout events.
func WithGatewayActivitySink(sink ActivitySink) GatewayOption {
	return func(g *AuthGateway) {
		g.activity = normalizeActivitySink(sink)
	}
}

// WithGatewayClock injects a custom clock (useful for tests).
func WithGatewayClock(clock func() time.Time) GatewayOption {
	return func(g *AuthGateway) {
		if clock != nil {
			g.now = clock
		}
	}
}

// AuthGateway performs the session changing operations against the
// Backend and is the only writer of the SessionStore.
type AuthGateway struct {
	store    *SessionStore
	backend  Backend
	tokens   TokenStore
	notifier Notifier
	cfg      Config
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// NewAuthGateway returns a gateway writing to store. A nil backend uses an
// HTTPBackend rooted at the configured base URL.
func NewAuthGateway(store *SessionStore, backend Backend, opts ...GatewayOption) *AuthGateway {
	g := &AuthGateway{
		store:    store,
		backend:  backend,
		tokens:   NewMemoryTokenStore(),
		notifier: noopNotifier{},
		cfg:      DefaultOptions(),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.backend == nil {
		g.backend = NewHTTPBackend(g.cfg.GetBaseURL(),
			WithBackendLogger(g.logger),
			WithBackendDebug(g.cfg.GetDebug()),
		)
	}

	return g
}

// Store returns the session store the gateway writes to.
func (g *AuthGateway) Store() *SessionStore {
	return g.store
}

// Bootstrap resolves the startup session once, see SessionStore.Bootstrap.
func (g *AuthGateway) Bootstrap(ctx context.Context) (Session, error) {
	return g.store.Bootstrap(ctx, g)
}

// FetchSession implements SessionSource. An expired stored token is
// dropped without calling the backend.
func (g *AuthGateway) FetchSession(ctx context.Context) (*User, error) {
	token := g.tokens.Token()
	if token != "" && IsTokenExpired(token, g.now()) {
		g.tokens.Clear()
		return nil, ErrCredentialExpired
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.GetRequestTimeout())
	defer cancel()

	resp, err := g.backend.Session(callCtx, token)
	if err != nil {
		if IsRejectedError(err) {
			g.tokens.Clear()
		}
		return nil, err
	}

	if resp == nil || resp.User == nil {
		return nil, nil
	}

	if resp.Token != "" {
		g.tokens.SetToken(resp.Token)
	}

	return resp.User, nil
}

// Login authenticates with email and password. On success the session
// becomes authenticated; on any failure it is left unchanged.
func (g *AuthGateway) Login(ctx context.Context, email, password string) AuthResult {
	msg := LoginMessage{Email: strings.TrimSpace(email), Password: password}
	op := gatewayOp{
		name:      msg.Type(),
		success:   ActivityEventLoginSuccess,
		failure:   ActivityEventLoginFailure,
		message:   LoginSuccessMessage,
		principal: msg.Email,
	}

	if err := msg.Validate(); err != nil {
		return g.fail(ctx, op, newValidationError(err))
	}

	return g.authenticate(ctx, op, func(ctx context.Context) (*AuthResponse, error) {
		return g.backend.Login(ctx, msg)
	})
}

// Register creates an account and authenticates it, with the same
// outcomes as Login.
func (g *AuthGateway) Register(ctx context.Context, msg RegisterMessage) AuthResult {
	op := gatewayOp{
		name:      msg.Type(),
		success:   ActivityEventRegisterSuccess,
		failure:   ActivityEventRegisterFailure,
		message:   RegisterSuccessMessage,
		principal: strings.TrimSpace(msg.Email),
	}

	if err := msg.Validate(); err != nil {
		return g.fail(ctx, op, newValidationError(err))
	}

	normalized, err := msg.Normalize(g.cfg.GetDefaultPhoneRegion())
	if err != nil {
		return g.fail(ctx, op, newValidationError(err))
	}

	return g.authenticate(ctx, op, func(ctx context.Context) (*AuthResponse, error) {
		return g.backend.Register(ctx, normalized)
	})
}

// Logout clears the local session first and then tells the backend, best
// effort. The session is anonymous afterwards whatever the backend says.
func (g *AuthGateway) Logout(ctx context.Context) AuthResult {
	token := g.tokens.Token()
	g.tokens.Clear()

	previous := g.store.Snapshot()
	session, err := g.store.setAnonymous()
	if err != nil {
		g.logger.Warn("logout after store teardown", "error", err)
		return AuthResult{Success: false, Error: CancelledAuthErrorMessage, Err: err}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.GetRequestTimeout())
	defer cancel()

	backendErr := g.backend.Logout(callCtx, token)
	if backendErr != nil {
		g.logger.Info("backend logout failed, session cleared locally", "error", backendErr)
	}

	g.notifier.Notify(ctx, Notification{Level: NotifySuccess, Message: LogoutSuccessMessage})

	recordActivity(ctx, g.activity, g.logger, ActivityEvent{
		EventType:  ActivityEventLogout,
		UserID:     userID(previous.User),
		FromStatus: previous.Status,
		ToStatus:   session.Status,
		Metadata:   errorMetadata(backendErr),
	})

	return AuthResult{Success: true, Session: session}
}

type gatewayOp struct {
	name      string
	success   ActivityEventType
	failure   ActivityEventType
	message   string
	principal string
}

func (g *AuthGateway) authenticate(ctx context.Context, op gatewayOp, call func(context.Context) (*AuthResponse, error)) AuthResult {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.GetRequestTimeout())
	resp, err := call(callCtx)
	cancel()

	// the caller went away while the call was in flight: drop the resolution
	if ctxErr := ctx.Err(); ctxErr != nil {
		g.logger.Debug("auth resolution dropped", "operation", op.name, "error", ctxErr)
		return AuthResult{
			Success: false,
			Error:   CancelledAuthErrorMessage,
			Session: g.store.Snapshot(),
			Err:     newCancelledError(ctxErr),
		}
	}

	if err != nil {
		return g.fail(ctx, op, err)
	}

	if resp == nil || resp.User == nil {
		return g.fail(ctx, op, newTransportError(goerrors.New("auth backend returned no user", goerrors.CategoryOperation)))
	}

	session, err := g.store.setAuthenticated(resp.User)
	if err != nil {
		if IsStoreDisposedError(err) {
			g.logger.Debug("auth resolution dropped, store disposed", "operation", op.name)
			return AuthResult{Success: false, Error: CancelledAuthErrorMessage, Err: err}
		}
		return g.fail(ctx, op, err)
	}

	if resp.Token != "" {
		g.tokens.SetToken(resp.Token)
	}

	g.notifier.Notify(ctx, Notification{Level: NotifySuccess, Message: op.message})

	recordActivity(ctx, g.activity, g.logger, ActivityEvent{
		EventType: op.success,
		UserID:    session.User.ID,
		ToStatus:  session.Status,
	})

	return AuthResult{Success: true, User: session.User, Session: session}
}

// fail reports a failed login or register: no store mutation, one error
// notification. Rejections are surfaced verbatim, anything else with the
// generic message.
func (g *AuthGateway) fail(ctx context.Context, op gatewayOp, err error) AuthResult {
	message := GenericAuthErrorMessage
	if IsRejectedError(err) {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Message != "" {
			message = richErr.Message
		}
	}

	if IsTransportError(err) {
		g.logger.Warn("auth backend unavailable", "operation", op.name, "error", err)
	} else {
		g.logger.Info("auth operation rejected", "operation", op.name, "error", err)
	}

	g.notifier.Notify(ctx, Notification{Level: NotifyError, Message: message})

	recordActivity(ctx, g.activity, g.logger, ActivityEvent{
		EventType: op.failure,
		Metadata: map[string]any{
			"principal": op.principal,
			"error":     err.Error(),
		},
	})

	return AuthResult{
		Success: false,
		Error:   message,
		Session: g.store.Snapshot(),
		Err:     err,
	}
}
