// Package guard tracks who is calling a property management front end and
// gates navigation on it.
//
// Session lifecycle:
//   - SessionStore holds the current Session (status, user, version). Create
//     one per application instance, Bootstrap it once through the
//     AuthGateway and Dispose it on shutdown. Bootstrap is memoized: callers
//     that arrive while it is in flight share the same backend call.
//   - The session state machine validates every status change. Only the
//     AuthGateway moves the store between authenticated and anonymous;
//     PatchUser merges refreshed profile fields without changing the status.
//
// Authentication:
//   - AuthGateway runs login, register and logout against a Backend (an
//     HTTPBackend speaking JSON by default) with a bounded timeout. Failures
//     leave the session untouched and are reported once through the
//     Notifier. Logout clears the local session first, whatever the backend
//     answers.
//
// Route authorization:
//   - RouteClassifier maps paths to a RouteCategory with an ordered prefix
//     table; unmatched paths are AuthenticatedAny.
//   - Guard.Decide turns (session, path) into a Decision: allowed, loading,
//     or a single redirect to login, unauthorized or the role home.
//     Guard.Evaluate fires the Navigator at most once per decision, and
//     Guard.Middleware / fiberguard.New apply the same table to HTTP routes.
//
// Activity sinks:
//   - ActivitySink receives session changes, auth outcomes and redirects.
//     Sinks run best-effort (errors are logged).
package guard
