package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/gatewayapi"
	"github.com/pscheid92/fanout/internal/adapter/httpserver"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/adapter/registrystore"
	"github.com/pscheid92/fanout/internal/adapter/websocket"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/pscheid92/fanout/internal/platform/logging"
	"github.com/pscheid92/fanout/internal/platform/version"
)

func runGracefulShutdown(srv *httpserver.Server, gateway *websocket.Gateway) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Close sockets first so their disconnect triggers still reach the store.
		gwCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gateway.Shutdown(gwCtx); err != nil {
			slog.Error("Gateway shutdown error", "error", err, "open_connections", gateway.Count())
		}

		srvCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(srvCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config, bundle *metrics.Bundle, clock clockwork.Clock) (registrystore.Store, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opts := registrystore.FromConfig(cfg)
	opts.Clock = clock
	opts.Metrics = bundle

	store, closeStore, err := registrystore.Open(ctx, opts)
	if err != nil {
		slog.Error("Failed to open registry store", "backend", cfg.RegistryBackend, "error", err)
		os.Exit(1)
	}
	return store, closeStore
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version, "backend", cfg.RegistryBackend)

	reg := metrics.NewRegistry()
	bundle := metrics.NewBundle(reg)

	store, closeStore := setupStore(cfg, bundle, clock)
	defer closeStore()

	registry := app.NewRegistry(store, bundle.Registry)
	broadcaster := app.NewBroadcaster(registry, clock,
		app.WithConcurrency(cfg.BroadcastConcurrency),
		app.WithDeliveryTimeout(cfg.DeliveryTimeout),
		app.WithBroadcastMetrics(bundle.Broadcast),
	)

	gateway := websocket.NewGateway(
		websocket.WithCheckOrigin(websocket.NewCheckOrigin(cfg.AllowedOrigins(), cfg.IsDevelopment())),
		websocket.WithSendRate(cfg.WebSocketSendRate, cfg.WebSocketSendBurst),
		websocket.WithMetrics(bundle.WebSocket),
	)

	resolver := gatewayapi.NewResolver(cfg.GatewayScheme, gateway,
		gatewayapi.WithBreakerMetrics(bundle.Breakers),
		gatewayapi.WithAllowedDomains(cfg.AllowedGatewayDomains()...),
	)

	defaultEndpoint := domain.Endpoint{DomainName: cfg.GatewayDomainName, Stage: cfg.GatewayStage}
	appSvc := app.NewService(registry, broadcaster, resolver, defaultEndpoint)
	gateway.Attach(appSvc)

	srv := httpserver.NewServer(cfg, appSvc, gateway,
		httpserver.WithConnectionLister(store),
		httpserver.WithMetrics(bundle.HTTP, metrics.Handler(reg)),
		httpserver.WithHealthChecks(httpserver.HealthCheck{Name: "registry", Check: store.Ping}),
	)

	done := runGracefulShutdown(srv, gateway)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		closeStore()
		os.Exit(1)
	}

	<-done
}
