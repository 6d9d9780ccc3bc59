package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	connectFn     func(ctx context.Context, connectionID string) (domain.Response, error)
	disconnectFn  func(ctx context.Context, connectionID string) (domain.Response, error)
	sendFn        func(ctx context.Context, req domain.SendRequest) (domain.Response, error)
	connectionsFn func(ctx context.Context) ([]string, error)
}

func (m *mockAppService) Connect(ctx context.Context, connectionID string) (domain.Response, error) {
	if m.connectFn != nil {
		return m.connectFn(ctx, connectionID)
	}
	return domain.OK(domain.StatusConnected), nil
}

func (m *mockAppService) Disconnect(ctx context.Context, connectionID string) (domain.Response, error) {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, connectionID)
	}
	return domain.OK(domain.StatusDisconnected), nil
}

func (m *mockAppService) Send(ctx context.Context, req domain.SendRequest) (domain.Response, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, req)
	}
	return domain.OK(domain.StatusMessageSent), nil
}

func (m *mockAppService) Connections(ctx context.Context) ([]string, error) {
	if m.connectionsFn != nil {
		return m.connectionsFn(ctx)
	}
	return nil, errors.New("not implemented")
}

type mockGateway struct {
	pushFn func(ctx context.Context, connectionID string, data []byte) (domain.DeliveryStatus, error)
}

func (m *mockGateway) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (m *mockGateway) Push(ctx context.Context, connectionID string, data []byte) (domain.DeliveryStatus, error) {
	if m.pushFn != nil {
		return m.pushFn(ctx, connectionID, data)
	}
	return domain.DeliveryGone, nil
}

type mockLister struct {
	listFn func(ctx context.Context) ([]domain.Connection, error)
}

func (m *mockLister) List(ctx context.Context) ([]domain.Connection, error) {
	return m.listFn(ctx)
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		TriggerRateLimit: 1000,
		TriggerRateBurst: 1000,
	}
}

func newTestServer(t *testing.T, app triggerService, opts ...Option) *Server {
	t.Helper()
	return newTestServerWithGateway(t, app, &mockGateway{}, opts...)
}

func newTestServerWithGateway(t *testing.T, app triggerService, gateway Gateway, opts ...Option) *Server {
	t.Helper()
	return NewServer(testConfig(), app, gateway, opts...)
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
