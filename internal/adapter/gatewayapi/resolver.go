package gatewayapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

var (
	// ErrNoLocalGateway is returned for an empty endpoint when no in-process gateway is configured.
	ErrNoLocalGateway = errors.New("no in-process gateway configured")
	// ErrDomainNotAllowed is returned for an endpoint outside the allowed gateway domains.
	ErrDomainNotAllowed = errors.New("gateway domain not allowed")
)

// Resolver implements domain.ChannelResolver. Endpoints with routing
// information get a cached Client per base URL; the zero endpoint resolves to
// the in-process gateway. Only allowed domains are resolved, which also bounds
// the client cache.
type Resolver struct {
	scheme     string
	local      domain.DeliveryChannel
	httpClient *http.Client
	settings   BreakerSettings
	breakers   *metrics.BreakerMetrics
	allowed    map[string]struct{}

	mu      sync.Mutex
	clients map[string]*Client
}

var _ domain.ChannelResolver = (*Resolver)(nil)

type Option func(*Resolver)

// WithHTTPClient sets the HTTP client shared by all endpoint clients.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.httpClient = c }
}

// WithBreakerSettings overrides DefaultBreakerSettings.
func WithBreakerSettings(s BreakerSettings) Option {
	return func(r *Resolver) { r.settings = s }
}

// WithBreakerMetrics records breaker transitions of every endpoint client.
func WithBreakerMetrics(m *metrics.BreakerMetrics) Option {
	return func(r *Resolver) { r.breakers = m }
}

// WithAllowedDomains sets the gateway domains endpoints may name, compared
// case-insensitively. Without it every non-empty endpoint is rejected.
func WithAllowedDomains(domains ...string) Option {
	return func(r *Resolver) {
		for _, d := range domains {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				r.allowed[d] = struct{}{}
			}
		}
	}
}

// NewResolver creates a resolver. scheme is "https" in production; local may be nil.
func NewResolver(scheme string, local domain.DeliveryChannel, opts ...Option) *Resolver {
	r := &Resolver{
		scheme:   scheme,
		local:    local,
		settings: DefaultBreakerSettings(),
		allowed:  make(map[string]struct{}),
		clients:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Channel(endpoint domain.Endpoint) (domain.DeliveryChannel, error) {
	if endpoint.IsZero() {
		if r.local == nil {
			return nil, ErrNoLocalGateway
		}
		return r.local, nil
	}
	if endpoint.DomainName == "" {
		return nil, fmt.Errorf("%w: endpoint has stage %q but no domain name", domain.ErrMalformedInput, endpoint.Stage)
	}
	if _, ok := r.allowed[strings.ToLower(endpoint.DomainName)]; !ok {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrMalformedInput, ErrDomainNotAllowed, endpoint.DomainName)
	}

	baseURL := endpoint.URL(r.scheme)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[baseURL]; ok {
		return c, nil
	}
	c := NewClient(baseURL, r.httpClient, r.settings, r.breakers)
	r.clients[baseURL] = c
	return c, nil
}
