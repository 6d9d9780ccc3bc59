package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy holds the normalized WS_ALLOWED_ORIGINS entries. An entry whose
// host starts with "*." matches any subdomain of the remaining host.
type originPolicy struct {
	exact    map[string]struct{}
	suffixes []string // "scheme://.example.com"
	dev      bool
}

// NewCheckOrigin returns the upgrader's CheckOrigin. Requests without an
// Origin header come from non-browser clients and are always allowed, as is
// everything when the allowlist is empty. In development localhost is allowed.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	p := originPolicy{exact: make(map[string]struct{}, len(allowed)), dev: isDevelopment}
	for _, a := range allowed {
		o := normalizeOrigin(a)
		if o == "" {
			slog.Warn("Ignoring malformed allowed origin", "origin", a)
			continue
		}
		if scheme, host, ok := strings.Cut(o, "://*."); ok {
			p.suffixes = append(p.suffixes, scheme+"://."+host)
			continue
		}
		p.exact[o] = struct{}{}
	}
	open := len(p.exact) == 0 && len(p.suffixes) == 0

	return func(r *http.Request) bool {
		raw := r.Header.Get("Origin")
		if raw == "" || open || p.allows(normalizeOrigin(raw)) {
			return true
		}
		slog.Warn("WebSocket origin rejected", "origin", raw, "remote_addr", r.RemoteAddr)
		return false
	}
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, suffix := range p.suffixes {
		scheme, domain, _ := strings.Cut(suffix, "://")
		if strings.HasPrefix(origin, scheme+"://") && strings.HasSuffix(origin, domain) {
			return true
		}
	}
	return p.dev && isLocalhostOrigin(origin)
}

// normalizeOrigin reduces a URL to lowercase "scheme://host[:port]", or "" if
// it has no host.
func normalizeOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
