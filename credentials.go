package guard

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStore keeps the bearer credential issued by the auth backend.
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenStore is a process local TokenStore.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryTokenStore) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *MemoryTokenStore) Clear() {
	m.SetToken("")
}

// TokenExpiry returns the exp claim of a JWT without verifying it. The
// signature is checked by the backend; this is only used to skip calls
// that are bound to fail. ok is false for opaque tokens or tokens
// without an expiry.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// IsTokenExpired reports whether token carries an exp claim before now.
func IsTokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && !now.Before(exp)
}
