package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
)

type triggerService interface {
	Connect(ctx context.Context, connectionID string) (domain.Response, error)
	Disconnect(ctx context.Context, connectionID string) (domain.Response, error)
	Send(ctx context.Context, req domain.SendRequest) (domain.Response, error)
	Connections(ctx context.Context) ([]string, error)
}

// Gateway is the in-process WebSocket gateway: it upgrades /ws and receives
// management API pushes.
type Gateway interface {
	http.Handler
	domain.DeliveryChannel
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app     triggerService
	lister  domain.ConnectionLister
	gateway Gateway

	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	healthChecks   []HealthCheck
	startTime      time.Time
}

type Option func(*Server)

// WithConnectionLister enables GET /connections/details.
func WithConnectionLister(l domain.ConnectionLister) Option {
	return func(s *Server) { s.lister = l }
}

// WithMetrics records HTTP metrics and serves h on GET /metrics.
func WithMetrics(m *metrics.HTTPMetrics, h http.Handler) Option {
	return func(s *Server) {
		s.httpMetrics = m
		s.metricsHandler = h
	}
}

// WithHealthChecks sets the checks run by the startup and readiness probes.
func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = checks }
}

func NewServer(cfg *config.Config, app triggerService, gateway Gateway, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		app:       app,
		gateway:   gateway,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) onRateLimited(route string) {
	if s.httpMetrics != nil {
		s.httpMetrics.RateLimited.WithLabelValues(route).Inc()
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
