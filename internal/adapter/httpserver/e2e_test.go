package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/gatewayapi"
	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/pscheid92/fanout/internal/adapter/websocket"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	server  *httptest.Server
	store   *memory.RegistryStore
	gateway *websocket.Gateway
}

// newStack wires the real service, memory registry and in-process gateway
// behind the HTTP surface.
func newStack(t *testing.T) *stack {
	t.Helper()
	return newStackOn(t, memory.NewRegistryStore(clockwork.NewRealClock()), domain.Endpoint{})
}

// newStackOn is newStack over a given store, delivering to endpoint by
// default. Only endpoint's domain is allowed for remote delivery.
func newStackOn(t *testing.T, store *memory.RegistryStore, endpoint domain.Endpoint) *stack {
	t.Helper()

	clock := clockwork.NewRealClock()
	registry := app.NewRegistry(store, nil)
	broadcaster := app.NewBroadcaster(registry, clock, app.WithConcurrency(4))
	gateway := websocket.NewGateway()
	resolver := gatewayapi.NewResolver("http", gateway, gatewayapi.WithAllowedDomains(endpoint.DomainName))
	service := app.NewService(registry, broadcaster, resolver, endpoint)
	gateway.Attach(service)

	srv := NewServer(testConfig(), service, gateway, WithConnectionLister(store))
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	return &stack{server: server, store: store, gateway: gateway}
}

func (s *stack) dial(t *testing.T) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *stack) registered(t *testing.T) []string {
	t.Helper()
	ids, err := s.store.Scan(context.Background())
	require.NoError(t, err)
	return ids
}

func readText(t *testing.T, conn *ws.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestEndToEnd_WebSocketBroadcast(t *testing.T) {
	s := newStack(t)

	alice := s.dial(t)
	bob := s.dial(t)
	require.Eventually(t, func() bool { return len(s.registered(t)) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte(`{"action":"sendmessage","message":"hello"}`)))

	fromAlice := readText(t, alice)
	assert.True(t, strings.HasSuffix(fromAlice, " says hello"), fromAlice)
	assert.Equal(t, fromAlice, readText(t, bob))
}

func TestEndToEnd_ClosedSocketIsPrunedOnBroadcast(t *testing.T) {
	s := newStack(t)

	alice := s.dial(t)
	require.Eventually(t, func() bool { return len(s.registered(t)) == 1 }, 2*time.Second, 5*time.Millisecond)

	// A registry entry without a live socket behaves like a missed disconnect.
	require.NoError(t, s.store.Put(context.Background(), "stale"))

	body := `{"requestContext":{"connectionId":"stale"},"body":"{\"message\":\"ping\"}"}`
	resp, err := http.Post(s.server.URL+"/triggers/send", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stale says ping", readText(t, alice))
	assert.NotContains(t, s.registered(t), "stale")
	assert.Len(t, s.registered(t), 1)
}

func TestEndToEnd_DisconnectRemovesRegistration(t *testing.T) {
	s := newStack(t)

	conn := s.dial(t)
	require.Eventually(t, func() bool { return len(s.registered(t)) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return len(s.registered(t)) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEndToEnd_ConnectionsEndpoint(t *testing.T) {
	s := newStack(t)

	s.dial(t)
	require.Eventually(t, func() bool { return len(s.registered(t)) == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get(s.server.URL + "/connections")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body connectionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, s.registered(t), body.Connections)
}

func TestEndToEnd_ManagementAPIThroughGatewayClient(t *testing.T) {
	s := newStack(t)

	conn := s.dial(t)
	require.Eventually(t, func() bool { return len(s.registered(t)) == 1 }, 2*time.Second, 5*time.Millisecond)
	id := s.registered(t)[0]

	client := gatewayapi.NewClient(s.server.URL, nil, gatewayapi.DefaultBreakerSettings(), nil)

	status, err := client.Push(context.Background(), id, []byte("via management api"))
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryOK, status)
	assert.Equal(t, "via management api", readText(t, conn))

	status, err = client.Push(context.Background(), "unknown", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryGone, status)
}

func TestEndToEnd_SecondInstanceDeliversThroughGatewayDomain(t *testing.T) {
	first := newStack(t)
	host := strings.TrimPrefix(first.server.URL, "http://")
	second := newStackOn(t, first.store, domain.Endpoint{DomainName: host})

	alice := first.dial(t)
	require.Eventually(t, func() bool { return len(first.registered(t)) == 1 }, 2*time.Second, 5*time.Millisecond)
	registered := first.registered(t)

	// The second instance holds no sockets but shares the registry. Its
	// broadcast goes through the first instance's management API and must
	// not prune alice.
	body := `{"requestContext":{"connectionId":"bob"},"body":"{\"message\":\"hi\"}"}`
	resp, err := http.Post(second.server.URL+"/triggers/send", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob says hi", readText(t, alice))
	assert.Equal(t, registered, first.registered(t))
	assert.Zero(t, second.gateway.Count())
}

func TestEndToEnd_SendToUnknownDomainIsRejected(t *testing.T) {
	s := newStack(t)

	s.dial(t)
	require.Eventually(t, func() bool { return len(s.registered(t)) == 1 }, 2*time.Second, 5*time.Millisecond)

	body := `{"requestContext":{"connectionId":"bob","domainName":"evil.example","stage":"prod"},"body":"{\"message\":\"hi\"}"}`
	resp, err := http.Post(s.server.URL+"/triggers/send", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, s.registered(t), 1)
}
