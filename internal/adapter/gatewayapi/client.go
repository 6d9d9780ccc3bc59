package gatewayapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/sony/gobreaker"
)

const (
	breakerComponent   = "gateway_api"
	maxDrainBytes      = 4 << 10
	defaultHTTPTimeout = 10 * time.Second
)

// BreakerSettings tunes the per-endpoint circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // failures in a row before opening
	OpenTimeout         time.Duration // time spent open before a probe is let through
}

// DefaultBreakerSettings opens after 5 consecutive failures and probes after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// Client pushes payloads to one gateway endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

var _ domain.DeliveryChannel = (*Client)(nil)

// NewClient creates a client for baseURL ("https://{domainName}/{stage}").
// m may be nil.
func NewClient(baseURL string, httpClient *http.Client, settings BreakerSettings, m *metrics.BreakerMetrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        baseURL,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		// A caller giving up says nothing about the endpoint.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", breakerComponent,
				"endpoint", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.Record(breakerComponent, to.String(), stateToFloat(to))
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		breaker:    breaker,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return metrics.BreakerClosed
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	default:
		return -1
	}
}

// BaseURL returns the endpoint this client posts to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// State returns the current breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Push posts data to the connection. 2xx is OK, 410 is Gone, and everything
// else (including an open breaker) is Transient.
func (c *Client) Push(ctx context.Context, connectionID string, data []byte) (domain.DeliveryStatus, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, connectionID, data)
	})
	if err != nil {
		return domain.DeliveryTransient, fmt.Errorf("%w: push to %s: %w", domain.ErrTransientDelivery, connectionID, err)
	}
	return result.(domain.DeliveryStatus), nil
}

func (c *Client) post(ctx context.Context, connectionID string, data []byte) (domain.DeliveryStatus, error) {
	target := c.baseURL + "/@connections/" + url.PathEscape(connectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return domain.DeliveryTransient, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.DeliveryTransient, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.DeliveryOK, nil
	case resp.StatusCode == http.StatusGone:
		return domain.DeliveryGone, nil
	default:
		return domain.DeliveryTransient, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
