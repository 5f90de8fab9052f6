package guard_test

import (
	"testing"

	guard "github.com/goliatone/go-guard"
	"github.com/stretchr/testify/assert"
)

func TestLoginURL(t *testing.T) {
	tests := []struct {
		name      string
		loginPath string
		param     string
		returnTo  string
		want      string
	}{
		{"plain path", "/auth/login", "redirect", "/admin/dashboard", "/auth/login?redirect=/admin/dashboard"},
		{"query escaped", "/auth/login", "redirect", "/leases?page=2", "/auth/login?redirect=/leases%3Fpage%3D2"},
		{"existing query", "/auth/login?theme=dark", "redirect", "/leases", "/auth/login?theme=dark&redirect=/leases"},
		{"no return path", "/auth/login", "redirect", "", "/auth/login"},
		{"no param", "/auth/login", "", "/leases", "/auth/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.LoginURL(tt.loginPath, tt.param, tt.returnTo))
		})
	}
}

func TestSanitizeReturnPath(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"local path", "/leases/12", "/leases/12", true},
		{"keeps query", "/leases?page=2", "/leases?page=2", true},
		{"cleans dot segments", "/properties/../admin/users", "/admin/users", true},
		{"trims spaces", "  /dashboard ", "/dashboard", true},
		{"encoded slashes stay local", "/%2F%2Fevil.com", "/evil.com", true},
		{"empty", "", "", false},
		{"relative", "leases", "", false},
		{"scheme relative", "//evil.com/path", "", false},
		{"absolute url", "https://evil.com/admin", "", false},
		{"backslash", "/\\evil.com", "", false},
		{"control character", "/leases\n/evil", "", false},
		{"javascript scheme", "javascript:alert(1)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := guard.SanitizeReturnPath(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReturnPathFrom(t *testing.T) {
	got, ok := guard.ReturnPathFrom("/auth/login?redirect=/admin/dashboard", "redirect")
	assert.True(t, ok)
	assert.Equal(t, "/admin/dashboard", got)

	got, ok = guard.ReturnPathFrom("/auth/login?redirect=/leases%3Fpage%3D2", "")
	assert.True(t, ok)
	assert.Equal(t, "/leases?page=2", got)

	got, ok = guard.ReturnPathFrom("/auth/login?next=/leases", "next")
	assert.True(t, ok)
	assert.Equal(t, "/leases", got)

	_, ok = guard.ReturnPathFrom("/auth/login", "redirect")
	assert.False(t, ok)

	_, ok = guard.ReturnPathFrom("/auth/login?redirect=//evil.com", "redirect")
	assert.False(t, ok)

	_, ok = guard.ReturnPathFrom("/auth/login?redirect=https%3A%2F%2Fevil.com", "redirect")
	assert.False(t, ok)
}

func TestLoginURLRoundTripsThroughReturnPathFrom(t *testing.T) {
	for _, target := range []string{"/admin/dashboard", "/leases?page=2&sort=due", "/reports/q1"} {
		loginURL := guard.LoginURL(guard.DefaultLoginPath, guard.DefaultReturnParam, target)
		got, ok := guard.ReturnPathFrom(loginURL, guard.DefaultReturnParam)
		assert.True(t, ok, loginURL)
		assert.Equal(t, target, got)
	}
}
