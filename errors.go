package guard

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTransport          = "AUTH_TRANSPORT"
	TextCodeTimeout            = "AUTH_TIMEOUT"
	TextCodeRejected           = "AUTH_REJECTED"
	TextCodeValidation         = "AUTH_VALIDATION"
	TextCodeCredentialExpired  = "AUTH_CREDENTIAL_EXPIRED"
	TextCodeCancelled          = "AUTH_OPERATION_CANCELLED"
	TextCodeStoreDisposed      = "SESSION_STORE_DISPOSED"
	TextCodeInvalidTransition  = "INVALID_SESSION_TRANSITION"
	TextCodeInvalidUser        = "INVALID_SESSION_USER"
	TextCodeInvalidRouteTable  = "INVALID_ROUTE_TABLE"
	TextCodeShadowedRouteRule  = "SHADOWED_ROUTE_RULE"
	TextCodeNavigationFailed   = "NAVIGATION_FAILED"
	GenericAuthErrorMessage    = "We could not reach the server. Please try again."
	CancelledAuthErrorMessage  = "The request was cancelled."
	defaultRejectedAuthMessage = "Authentication failed"
)

// ErrTransport is returned when the auth backend cannot be reached.
var ErrTransport = goerrors.New("auth backend unreachable", goerrors.CategoryOperation).
	WithTextCode(TextCodeTransport).
	WithCode(http.StatusBadGateway)

// ErrTimeout is returned when a backend call exceeds the request timeout.
var ErrTimeout = goerrors.New("auth backend timed out", goerrors.CategoryOperation).
	WithTextCode(TextCodeTimeout).
	WithCode(http.StatusGatewayTimeout)

// ErrRejected is returned when the backend answers with a structured error.
var ErrRejected = goerrors.New(defaultRejectedAuthMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeRejected).
	WithCode(goerrors.CodeUnauthorized)

// ErrCredentialExpired is returned when the stored credential expired before use.
var ErrCredentialExpired = goerrors.New("stored credential expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeCredentialExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrOperationCancelled is returned when the caller went away before the
// operation resolved; the late resolution is discarded.
var ErrOperationCancelled = goerrors.New("auth operation cancelled", goerrors.CategoryOperation).
	WithTextCode(TextCodeCancelled)

// ErrStoreDisposed is returned when mutating a store after Dispose.
var ErrStoreDisposed = goerrors.New("session store disposed", goerrors.CategoryConflict).
	WithTextCode(TextCodeStoreDisposed).
	WithCode(goerrors.CodeConflict)

// ErrInvalidTransition is returned when a requested session status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidUser is returned when authenticating with an incomplete user record.
var ErrInvalidUser = goerrors.New("authenticated session requires a user with an id", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidUser).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidRouteTable is returned when a route rule fails validation.
var ErrInvalidRouteTable = goerrors.New("invalid route table", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRouteTable).
	WithCode(goerrors.CodeBadRequest)

// ErrShadowedRoute is returned when a rule can never match because an
// earlier rule already covers its prefix.
var ErrShadowedRoute = goerrors.New("route rule shadowed by an earlier rule", goerrors.CategoryValidation).
	WithTextCode(TextCodeShadowedRouteRule).
	WithCode(goerrors.CodeBadRequest)

// ErrNavigationFailed wraps a Navigator failure.
var ErrNavigationFailed = goerrors.New("navigation failed", goerrors.CategoryInternal).
	WithTextCode(TextCodeNavigationFailed).
	WithCode(goerrors.CodeInternal)

// IsTransportError reports whether err is a transport or timeout failure.
func IsTransportError(err error) bool {
	return hasTextCode(err, TextCodeTransport, TextCodeTimeout)
}

// IsTimeoutError reports whether err is a request timeout.
func IsTimeoutError(err error) bool {
	return hasTextCode(err, TextCodeTimeout)
}

// IsRejectedError reports whether err is a structured rejection, either
// from the backend or from client side validation.
func IsRejectedError(err error) bool {
	return hasTextCode(err, TextCodeRejected, TextCodeValidation)
}

// IsCancelledError reports whether the caller cancelled the operation.
func IsCancelledError(err error) bool {
	return hasTextCode(err, TextCodeCancelled)
}

// IsStoreDisposedError reports whether err comes from a disposed store.
func IsStoreDisposedError(err error) bool {
	return hasTextCode(err, TextCodeStoreDisposed)
}

// IsInvalidTransitionError reports whether err is a refused state transition.
func IsInvalidTransitionError(err error) bool {
	return hasTextCode(err, TextCodeInvalidTransition)
}

func hasTextCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	for _, code := range codes {
		if richErr.TextCode == code {
			return true
		}
	}
	return false
}

// withMetadata decorates a copy of a sentinel so package level values stay untouched.
func withMetadata(sentinel *goerrors.Error, metadata map[string]any) *goerrors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(metadata)
}

func newTransportError(err error) error {
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || isTimeout(err)) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, ErrTimeout.Message).
			WithTextCode(TextCodeTimeout).
			WithCode(http.StatusGatewayTimeout)
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, ErrTransport.Message).
		WithTextCode(TextCodeTransport).
		WithCode(http.StatusBadGateway)
}

func newRejectedError(status int, message string) error {
	if message == "" {
		message = defaultRejectedAuthMessage
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(TextCodeRejected).
		WithCode(status)
}

func newValidationError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

func newCancelledError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, ErrOperationCancelled.Message).
		WithTextCode(TextCodeCancelled)
}

type timeoutError interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}
