package guard

import (
	"context"
	"slices"
	"sync"
)

// GuardState is the outcome of a single guard evaluation.
type GuardState string

const (
	// GuardInitializing means the session is not settled yet: show a
	// loading placeholder and do not navigate
	GuardInitializing         GuardState = "initializing"
	GuardAllowed              GuardState = "allowed"
	GuardRedirectLogin        GuardState = "redirect_login"
	GuardRedirectUnauthorized GuardState = "redirect_unauthorized"
	GuardRedirectRoleHome     GuardState = "redirect_role_home"
)

// IsRedirect reports whether the state carries a NavigationIntent.
func (s GuardState) IsRedirect() bool {
	switch s {
	case GuardRedirectLogin, GuardRedirectUnauthorized, GuardRedirectRoleHome:
		return true
	default:
		return false
	}
}

// NavigationReason explains a NavigationIntent.
type NavigationReason string

const (
	ReasonUnauthenticated      NavigationReason = "unauthenticated"
	ReasonForbidden            NavigationReason = "forbidden"
	ReasonAlreadyAuthenticated NavigationReason = "already_authenticated"
	ReasonAdminHome            NavigationReason = "admin_home"
	ReasonAuthenticated        NavigationReason = "authenticated"
)

// NavigationIntent is the single redirect a decision may produce.
type NavigationIntent struct {
	Target string           `json:"target"`
	Reason NavigationReason `json:"reason"`
}

// Decision is the result of deciding one (session, path) pair.
type Decision struct {
	State          GuardState        `json:"state"`
	Path           string            `json:"path"`
	Category       RouteCategory     `json:"category"`
	Intent         *NavigationIntent `json:"intent,omitempty"`
	SessionVersion uint64            `json:"session_version"`
	// Navigated is set by Evaluate when this call fired the navigator
	Navigated bool `json:"navigated"`
}

// GuardConfig holds the paths and roles the decision table redirects to.
type GuardConfig struct {
	LoginPath        string
	UnauthorizedPath string
	HomePath         string
	AdminRole        string
	AdminHomePath    string
	ReturnParam      string
	RoleHomes        RoleHomes
	// EntryPaths are public pages authenticated users are sent away from
	EntryPaths []string
}

// GuardConfigFrom maps a Config to a GuardConfig.
func GuardConfigFrom(cfg Config) GuardConfig {
	if cfg == nil {
		cfg = DefaultOptions()
	}
	return GuardConfig{
		LoginPath:        cfg.GetLoginPath(),
		UnauthorizedPath: cfg.GetUnauthorizedPath(),
		HomePath:         cfg.GetHomePath(),
		AdminRole:        cfg.GetAdminRole(),
		AdminHomePath:    cfg.GetAdminHomePath(),
		ReturnParam:      cfg.GetReturnParam(),
		EntryPaths:       []string{cfg.GetLoginPath(), cfg.GetRegisterPath()},
	}
}

// GuardOption customizes guard construction.
type GuardOption func(*Guard)

// WithNavigator sets the navigator Evaluate fires redirects through.
func WithNavigator(nav Navigator) GuardOption {
	return func(g *Guard) {
		g.navigator = nav
	}
}

// WithGuardConfig overrides the decision table configuration.
func WithGuardConfig(cfg GuardConfig) GuardOption {
	return func(g *Guard) {
		g.cfg = cfg
	}
}

// WithGuardLogger overrides the logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardActivitySink records fired redirects.
func WithGuardActivitySink(sink ActivitySink) GuardOption {
	return func(g *Guard) {
		g.activity = normalizeActivitySink(sink)
	}
}

type evalKey struct {
	version uint64
	target  string
}

// Guard decides whether the current caller may see a path and performs at
// most one navigation per decision.
type Guard struct {
	store      *SessionStore
	classifier *RouteClassifier
	cfg        GuardConfig
	navigator  Navigator
	logger     Logger
	activity   ActivitySink

	mu       sync.Mutex
	last     evalKey
	hasLast  bool
	lastDecn Decision
}

// NewGuard returns a guard over store. A nil classifier uses
// DefaultRouteRules. The login and unauthorized paths must classify as
// public, otherwise redirects would loop.
func NewGuard(store *SessionStore, classifier *RouteClassifier, opts ...GuardOption) (*Guard, error) {
	if classifier == nil {
		c, err := NewRouteClassifier(DefaultRouteRules())
		if err != nil {
			return nil, err
		}
		classifier = c
	}

	g := &Guard{
		store:      store,
		classifier: classifier,
		cfg:        GuardConfigFrom(nil),
		logger:     defLogger{},
		activity:   noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.cfg = g.cfg.withDefaults()

	for _, p := range []string{g.cfg.LoginPath, g.cfg.UnauthorizedPath} {
		if !classifier.Classify(p).IsPublic() {
			return nil, withMetadata(ErrInvalidRouteTable, map[string]any{
				"path":   p,
				"reason": "redirect target must be public",
			})
		}
	}

	return g, nil
}

func (c GuardConfig) withDefaults() GuardConfig {
	c.LoginPath = orDefault(c.LoginPath, DefaultLoginPath)
	c.UnauthorizedPath = orDefault(c.UnauthorizedPath, DefaultUnauthorizedPath)
	c.HomePath = orDefault(c.HomePath, DefaultHomePath)
	c.AdminRole = orDefault(c.AdminRole, RoleAdmin)
	c.AdminHomePath = orDefault(c.AdminHomePath, DefaultAdminHomePath)
	c.ReturnParam = orDefault(c.ReturnParam, DefaultReturnParam)
	if len(c.EntryPaths) == 0 {
		c.EntryPaths = []string{c.LoginPath, DefaultRegisterPath}
	}
	return c
}

// Config returns the resolved decision table configuration.
func (g *Guard) Config() GuardConfig {
	return g.cfg
}

// Classifier returns the route classifier used by the guard.
func (g *Guard) Classifier() *RouteClassifier {
	return g.classifier
}

// Check decides requestURL against the current session without firing
// the navigator. Request scoped adapters use it.
func (g *Guard) Check(requestURL string) (Session, Decision) {
	session := g.store.Snapshot()
	return session, g.Decide(session, requestURL)
}

// Decide applies the decision table to session and requestURL. It has no
// side effects.
func (g *Guard) Decide(session Session, requestURL string) Decision {
	p := NormalizePath(requestURL)
	d := Decision{
		Path:           p,
		SessionVersion: session.Version,
	}

	if !session.IsSettled() {
		d.State = GuardInitializing
		return d
	}

	categories := g.classifier.Categories(requestURL)
	d.Category = strictest(categories)

	switch {
	case d.Category.IsPublic():
		if session.IsAuthenticated() && g.isEntryPath(p) {
			return d.redirect(GuardRedirectRoleHome, g.returnTarget(session, requestURL), ReasonAlreadyAuthenticated)
		}
		d.State = GuardAllowed

	case !session.IsAuthenticated():
		target := LoginURL(g.cfg.LoginPath, g.cfg.ReturnParam, requestTarget(requestURL))
		return d.redirect(GuardRedirectLogin, target, ReasonUnauthenticated)

	case !g.satisfiesAll(session, categories):
		return d.redirect(GuardRedirectUnauthorized, g.cfg.UnauthorizedPath, ReasonForbidden)

	default:
		d.State = GuardAllowed
	}

	if d.State == GuardAllowed && g.isAdmin(session) && p == g.cfg.HomePath && p != g.cfg.AdminHomePath {
		return d.redirect(GuardRedirectRoleHome, g.cfg.AdminHomePath, ReasonAdminHome)
	}

	return d
}

func (d Decision) redirect(state GuardState, target string, reason NavigationReason) Decision {
	d.State = state
	d.Intent = &NavigationIntent{Target: target, Reason: reason}
	return d
}

func (g *Guard) satisfiesAll(session Session, categories []RouteCategory) bool {
	for _, category := range categories {
		if !g.satisfies(session, category) {
			return false
		}
	}
	return true
}

func (g *Guard) satisfies(session Session, category RouteCategory) bool {
	switch category.Kind {
	case KindPublic, KindAuthenticatedAny:
		return true
	case KindRoleGated:
		if g.isAdmin(session) {
			return true
		}
		return slices.Contains(category.Roles, RoleAny) ||
			slices.Contains(category.Roles, session.Role())
	case KindPermissionGated:
		if g.isAdmin(session) {
			return true
		}
		return session.User.HasAnyPermission(category.Permissions)
	default:
		return false
	}
}

func (g *Guard) isAdmin(session Session) bool {
	return session.IsAuthenticated() && IsAdminRole(session.Role(), g.cfg.AdminRole)
}

func (g *Guard) isEntryPath(p string) bool {
	for _, entry := range g.cfg.EntryPaths {
		if matchesPrefix(p, NormalizePath(entry)) {
			return true
		}
	}
	return false
}

// HomeFor returns the landing page of the session's role.
func (g *Guard) HomeFor(session Session) string {
	if g.isAdmin(session) {
		return g.cfg.AdminHomePath
	}
	return g.cfg.RoleHomes.HomeFor(session.Role(), g.cfg.HomePath)
}

// AfterAuthentication resolves where an authenticated caller goes from
// the entry page they authenticated on: the carried return path when the
// decision table lets them see it, otherwise their role home. It reports
// false when the session is not authenticated.
func (g *Guard) AfterAuthentication(session Session, entryURL string) (NavigationIntent, bool) {
	if !session.IsAuthenticated() {
		return NavigationIntent{}, false
	}
	return NavigationIntent{
		Target: g.returnTarget(session, entryURL),
		Reason: ReasonAuthenticated,
	}, true
}

func (g *Guard) returnTarget(session Session, entryURL string) string {
	home := g.HomeFor(session)

	ret, ok := ReturnPathFrom(entryURL, g.cfg.ReturnParam)
	if !ok || g.isEntryPath(NormalizePath(ret)) {
		return home
	}

	d := g.Decide(session, ret)
	switch d.State {
	case GuardAllowed:
		return ret
	case GuardRedirectRoleHome:
		return d.Intent.Target
	default:
		return home
	}
}

// Evaluate decides requestURL against the current session and fires the
// navigator for redirect decisions. Evaluating the same (session version,
// request) pair again is a no-op that returns the previous decision, so a
// redirect fires once per decision and not once per render.
func (g *Guard) Evaluate(ctx context.Context, requestURL string) (Decision, error) {
	session := g.store.Snapshot()
	// keyed on the raw URL: encoded variants of one path can classify
	// differently
	key := evalKey{version: session.Version, target: requestURL}

	g.mu.Lock()
	if g.hasLast && g.last == key {
		d := g.lastDecn
		g.mu.Unlock()
		d.Navigated = false
		return d, nil
	}

	d := g.Decide(session, requestURL)
	g.last, g.hasLast, g.lastDecn = key, true, d
	g.mu.Unlock()

	if d.Intent == nil || g.navigator == nil {
		return d, nil
	}

	if err := g.navigator.Navigate(ctx, *d.Intent); err != nil {
		g.mu.Lock()
		if g.last == key {
			g.hasLast = false
		}
		g.mu.Unlock()

		g.logger.Error("guard navigation failed", "target", d.Intent.Target, "error", err)
		return d, withMetadata(ErrNavigationFailed, map[string]any{
			"target": d.Intent.Target,
			"error":  err.Error(),
		})
	}

	d.Navigated = true
	g.logger.Debug("guard redirect", "path", d.Path, "state", d.State, "target", d.Intent.Target)
	recordActivity(ctx, g.activity, g.logger, ActivityEvent{
		EventType: ActivityEventGuardRedirect,
		UserID:    userID(session.User),
		ToStatus:  session.Status,
		Path:      d.Path,
		Metadata: map[string]any{
			"state":  d.State,
			"target": d.Intent.Target,
			"reason": d.Intent.Reason,
		},
	})

	return d, nil
}

// Attach evaluates currentURL now and again after every session change
// until ctx ends or the returned detach func is called.
func (g *Guard) Attach(ctx context.Context, currentURL func() string) func() {
	if currentURL == nil {
		return func() {}
	}

	evaluate := func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := g.Evaluate(ctx, currentURL()); err != nil {
			g.logger.Warn("guard re-evaluation failed", "error", err)
		}
	}

	unsubscribe := g.store.Subscribe(func(Session) { evaluate() })

	var once sync.Once
	detach := func() { once.Do(unsubscribe) }
	stop := context.AfterFunc(ctx, detach)

	evaluate()

	return func() {
		stop()
		detach()
	}
}
