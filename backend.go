package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

const (
	SessionEndpoint  = "/auth/session"
	LoginEndpoint    = "/auth/login"
	RegisterEndpoint = "/auth/register"
	LogoutEndpoint   = "/auth/logout"

	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// AuthResponse is the body of a successful session, login or register
// call. Token is optional; cookie based backends leave it empty.
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token,omitempty"`
}

// Backend is the external authentication service.
type Backend interface {
	// Session returns the session valid for token (or the cookie jar). A
	// nil response means there is none.
	Session(ctx context.Context, token string) (*AuthResponse, error)
	Login(ctx context.Context, msg LoginMessage) (*AuthResponse, error)
	Register(ctx context.Context, msg RegisterMessage) (*AuthResponse, error)
	Logout(ctx context.Context, token string) error
}

// HTTPBackendOption customizes the HTTP backend.
type HTTPBackendOption func(*HTTPBackend)

// WithHTTPClient overrides the http.Client used for backend calls.
func WithHTTPClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if client != nil {
			b.client = client
		}
	}
}

// WithBackendLogger overrides the logger.
func WithBackendLogger(logger Logger) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBackendDebug dumps request and response payloads.
func WithBackendDebug(debug bool) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.debug = debug
	}
}

// HTTPBackend talks to the auth backend over JSON/HTTP.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	logger  Logger
	debug   bool
}

// NewHTTPBackend returns a backend rooted at baseURL. The default client
// keeps cookies so cookie sessions survive between calls.
func NewHTTPBackend(baseURL string, opts ...HTTPBackendOption) *HTTPBackend {
	jar, _ := cookiejar.New(nil)
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

// Session implements Backend. 4xx answers come back as rejected errors and
// 5xx answers as transport errors.
func (b *HTTPBackend) Session(ctx context.Context, token string) (*AuthResponse, error) {
	resp := &AuthResponse{}
	if err := b.doJSON(ctx, http.MethodGet, SessionEndpoint, token, nil, resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, nil
	}
	return resp, nil
}

// Login implements Backend.
func (b *HTTPBackend) Login(ctx context.Context, msg LoginMessage) (*AuthResponse, error) {
	resp := &AuthResponse{}
	if err := b.doJSON(ctx, http.MethodPost, LoginEndpoint, "", msg, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Register implements Backend.
func (b *HTTPBackend) Register(ctx context.Context, msg RegisterMessage) (*AuthResponse, error) {
	resp := &AuthResponse{}
	if err := b.doJSON(ctx, http.MethodPost, RegisterEndpoint, "", msg.body(), resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Logout implements Backend. The response body is ignored.
func (b *HTTPBackend) Logout(ctx context.Context, token string) error {
	return b.doJSON(ctx, http.MethodPost, LogoutEndpoint, token, nil, nil)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b *HTTPBackend) doJSON(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return newTransportError(err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if b.debug {
		b.logger.Debug("auth backend request", "method", method, "path", path, "request_id", requestID)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		eb := errorBody{}
		_ = json.Unmarshal(raw, &eb)

		message := eb.Error
		if message == "" {
			message = eb.Message
		}

		if b.debug {
			b.logger.Debug("auth backend rejected",
				"path", path,
				"status", resp.StatusCode,
				"request_id", requestID,
				"body", print.MaybePrettyJSON(eb),
			)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return newTransportError(fmt.Errorf("%s %s: backend status %d", method, path, resp.StatusCode))
		}

		return newRejectedError(resp.StatusCode, message)
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
		return newTransportError(fmt.Errorf("decode %s %s response: %w", method, path, err))
	}

	if b.debug {
		b.logger.Debug("auth backend response",
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"body", print.MaybePrettyJSON(redactToken(result)),
		)
	}

	return nil
}

func redactToken(result any) any {
	if resp, ok := result.(*AuthResponse); ok && resp != nil && resp.Token != "" {
		c := *resp
		c.Token = "[redacted]"
		return c
	}
	return result
}
