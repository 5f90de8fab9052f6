package guard

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// LoginURL builds the login redirect carrying returnTo in the param query
// value, e.g. /auth/login?redirect=/admin/dashboard. Slashes are kept
// readable.
func LoginURL(loginPath, param, returnTo string) string {
	if param == "" || returnTo == "" {
		return loginPath
	}

	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}

	value := strings.ReplaceAll(url.QueryEscape(returnTo), "%2F", "/")
	return loginPath + sep + url.QueryEscape(param) + "=" + value
}

// SanitizeReturnPath returns a clean, local, absolute path for raw. It
// rejects anything that a browser could resolve to another origin:
// scheme relative URLs, absolute URLs, backslashes and control characters.
func SanitizeReturnPath(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "", false
	}

	if strings.HasPrefix(raw, "//") || strings.ContainsRune(raw, '\\') {
		return "", false
	}

	if strings.IndexFunc(raw, unicode.IsControl) >= 0 {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}

	clean := path.Clean(u.Path)
	if !strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "//") {
		return "", false
	}

	out := &url.URL{Path: clean, RawQuery: u.RawQuery}
	return out.String(), true
}

// ReturnPathFrom extracts and sanitizes the return path carried by an
// entry URL such as /auth/login?redirect=/leases/12.
func ReturnPathFrom(entryURL, param string) (string, bool) {
	if param == "" {
		param = DefaultReturnParam
	}

	i := strings.Index(entryURL, "?")
	if i < 0 {
		return "", false
	}

	query := entryURL[i+1:]
	if j := strings.Index(query, "#"); j >= 0 {
		query = query[:j]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}

	return SanitizeReturnPath(values.Get(param))
}

// requestTarget is the normalized path plus the raw query of a request
// URL, the value carried back to the caller after login.
func requestTarget(rawURL string) string {
	p := NormalizePath(rawURL)

	query := ""
	if i := strings.Index(rawURL, "?"); i >= 0 {
		query = rawURL[i+1:]
		if j := strings.Index(query, "#"); j >= 0 {
			query = query[:j]
		}
	}

	return (&url.URL{Path: p, RawQuery: query}).String()
}
