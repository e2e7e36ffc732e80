// Package intercept recognises responses that carry a shared payload and
// rewrites them in place, before they are released to the client.
package intercept

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Matcher selects responses whose originating request targets the store's
// import path. Host, port and path suffix must all match.
type Matcher struct {
	Host   string
	Port   int
	Suffix string
}

// NewMatcher returns a Matcher for the store at host:port.
func NewMatcher(host string, port int, suffix string) Matcher {
	return Matcher{Host: host, Port: port, Suffix: suffix}
}

func defaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "https", "wss":
		return 443
	case "http", "ws":
		return 80
	default:
		return 0
	}
}

// MatchURL reports whether u addresses the import path on the store. A URL
// without an explicit port uses its scheme default.
func (m Matcher) MatchURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	if !strings.EqualFold(u.Hostname(), m.Host) {
		return false
	}
	port := defaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		port = n
	}
	if port != m.Port {
		return false
	}
	return strings.HasSuffix(u.Path, m.Suffix)
}

// MatchRequest applies MatchURL to the request URL, falling back to the
// Host header for server-side requests whose URL carries only a path.
func (m Matcher) MatchRequest(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	u := r.URL
	if u.Host == "" && r.Host != "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		u = &url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	}
	return m.MatchURL(u)
}
