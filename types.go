package guard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the structured logger used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SessionSource discovers the session that is valid when the application
// starts. A nil user with a nil error means there is no session.
type SessionSource interface {
	FetchSession(ctx context.Context) (*User, error)
}

// SessionSourceFunc adapts a function to the SessionSource interface.
type SessionSourceFunc func(ctx context.Context) (*User, error)

// FetchSession implements SessionSource.
func (f SessionSourceFunc) FetchSession(ctx context.Context) (*User, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx)
}

// SessionListener is notified after every committed session change.
type SessionListener func(session Session)

// Navigator performs the side effect of a redirect decision.
type Navigator interface {
	Navigate(ctx context.Context, intent NavigationIntent) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, intent NavigationIntent) error

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, intent NavigationIntent) error {
	if f == nil {
		return nil
	}
	return f(ctx, intent)
}

// NotificationLevel is the severity of a user facing message.
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
	NotifyInfo    NotificationLevel = "info"
)

// Notification is a human readable message surfaced to the caller.
type Notification struct {
	Level   NotificationLevel
	Message string
}

// Notifier surfaces messages to the user (toasts, flash messages...).
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	if f != nil {
		f(ctx, n)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

// Config holds gateway and guard options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetDefaultPhoneRegion() string
	GetDebug() bool
	GetLoginPath() string
	GetRegisterPath() string
	GetUnauthorizedPath() string
	GetHomePath() string
	GetAdminRole() string
	GetAdminHomePath() string
	GetReturnParam() string
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] GUARD " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] GUARD " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] GUARD " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] GUARD " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
