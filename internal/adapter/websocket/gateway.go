package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/correlation"
	"golang.org/x/time/rate"
)

const (
	defaultWriteTimeout = 5 * time.Second
	maxMessageSize      = 32 << 10
	triggerTimeout      = 10 * time.Second
	sendAction          = "sendmessage"
)

// Triggers is the part of the trigger service the gateway fires.
type Triggers interface {
	Connect(ctx context.Context, connectionID string) (domain.Response, error)
	Disconnect(ctx context.Context, connectionID string) (domain.Response, error)
	Send(ctx context.Context, req domain.SendRequest) (domain.Response, error)
}

// inboundFrame is the routing envelope of a client frame. The whole frame is
// forwarded as the send trigger body.
type inboundFrame struct {
	Action string `json:"action"`
}

type client struct {
	id      string
	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex
}

// Gateway tracks the sockets of this process and pushes to them by connection ID.
type Gateway struct {
	upgrader     websocket.Upgrader
	metrics      *metrics.WebSocketMetrics
	writeTimeout time.Duration
	sendRate     rate.Limit
	sendBurst    int

	mu       sync.RWMutex
	clients  map[string]*client
	triggers Triggers
	closing  bool

	// serving counts ServeHTTP calls still running, so Shutdown can wait for
	// their disconnect triggers. Add only happens under mu while !closing.
	serving sync.WaitGroup
}

var _ domain.DeliveryChannel = (*Gateway)(nil)

type Option func(*Gateway)

// WithCheckOrigin sets the upgrader's origin check (see NewCheckOrigin).
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(g *Gateway) { g.upgrader.CheckOrigin = check }
}

// WithSendRate limits inbound send frames per connection.
func WithSendRate(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		g.sendRate = rate.Limit(perSecond)
		g.sendBurst = burst
	}
}

// WithWriteTimeout bounds a single socket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.writeTimeout = d }
}

// WithMetrics records connection and frame counts.
func WithMetrics(m *metrics.WebSocketMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: defaultWriteTimeout,
		sendRate:     rate.Limit(5),
		sendBurst:    10,
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Attach sets the trigger service. The service itself resolves deliveries
// back to this gateway, so it is wired after construction.
func (g *Gateway) Attach(t Triggers) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.triggers = t
}

// admit registers a running ServeHTTP call with serving. It returns the
// status to reply with when the gateway cannot take the socket.
func (g *Gateway) admit() (Triggers, int, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.closing:
		return nil, http.StatusServiceUnavailable, "gateway shutting down"
	case g.triggers == nil:
		return nil, http.StatusServiceUnavailable, "gateway not ready"
	}
	g.serving.Add(1)
	return g.triggers, 0, ""
}

// ServeHTTP upgrades the request and runs the connection until the client leaves.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	triggers, status, reason := g.admit()
	if triggers == nil {
		http.Error(w, reason, status)
		return
	}
	defer g.serving.Done()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		limiter: rate.NewLimiter(g.sendRate, g.sendBurst),
	}
	ctx := correlation.WithConnectionID(context.WithoutCancel(r.Context()), c.id)

	// The socket is pushable before the registry learns about it, so a
	// concurrent broadcast never sees a registered ID as gone.
	if !g.add(c) {
		g.closeWith(c, websocket.CloseGoingAway, "server shutting down")
		return
	}

	if err := g.fire(ctx, func(ctx context.Context) error {
		_, err := triggers.Connect(ctx, c.id)
		return err
	}); err != nil {
		slog.ErrorContext(ctx, "Connect trigger failed, closing socket", "error", err)
		g.remove(c.id)
		g.closeWith(c, websocket.CloseInternalServerErr, "registration failed")
		return
	}

	g.readLoop(ctx, c, triggers)

	g.remove(c.id)
	_ = conn.Close()
	if err := g.fire(ctx, func(ctx context.Context) error {
		_, err := triggers.Disconnect(ctx, c.id)
		return err
	}); err != nil {
		slog.WarnContext(ctx, "Disconnect trigger failed", "error", err)
	}
}

func (g *Gateway) fire(ctx context.Context, trigger func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, triggerTimeout)
	defer cancel()
	return trigger(ctx)
}

func (g *Gateway) readLoop(ctx context.Context, c *client, triggers Triggers) {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			g.countInbound("ignored")
			continue
		}
		g.handleFrame(ctx, c, triggers, data)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, c *client, triggers Triggers, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Action != sendAction {
		slog.DebugContext(ctx, "Ignoring inbound frame", "action", frame.Action)
		g.countInbound("ignored")
		return
	}

	if !c.limiter.Allow() {
		slog.DebugContext(ctx, "Inbound send rate limited")
		g.countInbound("rate_limited")
		return
	}

	err := g.fire(ctx, func(ctx context.Context) error {
		_, err := triggers.Send(ctx, domain.SendRequest{ConnectionID: c.id, Body: data})
		return err
	})
	switch {
	case err == nil:
		g.countInbound("sent")
	case errors.Is(err, domain.ErrMalformedInput):
		slog.DebugContext(ctx, "Rejected malformed send frame", "error", err)
		g.countInbound("malformed")
	default:
		slog.WarnContext(ctx, "Send trigger failed", "error", err)
		g.countInbound("failed")
	}
}

// Push writes data as one text frame. Unknown or closing sockets are gone;
// any other write failure is transient.
func (g *Gateway) Push(ctx context.Context, connectionID string, data []byte) (domain.DeliveryStatus, error) {
	g.mu.RLock()
	c, ok := g.clients[connectionID]
	g.mu.RUnlock()
	if !ok {
		return domain.DeliveryGone, nil
	}

	if err := g.write(ctx, c, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return domain.DeliveryGone, nil
		}
		return domain.DeliveryTransient, fmt.Errorf("%w: write to %s: %w", domain.ErrTransientDelivery, connectionID, err)
	}

	if g.metrics != nil {
		g.metrics.MessagesPushed.Inc()
	}
	return domain.DeliveryOK, nil
}

func (g *Gateway) write(ctx context.Context, c *client, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(g.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (g *Gateway) closeWith(c *client, code int, text string) {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}

// add makes c pushable. It reports false once Shutdown has started, since
// Shutdown only closes the sockets it saw.
func (g *Gateway) add(c *client) bool {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return false
	}
	g.clients[c.id] = c
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.ActiveConnections.Inc()
	}
	return true
}

func (g *Gateway) remove(id string) {
	g.mu.Lock()
	_, ok := g.clients[id]
	delete(g.clients, id)
	g.mu.Unlock()

	if ok && g.metrics != nil {
		g.metrics.ActiveConnections.Dec()
	}
}

func (g *Gateway) countInbound(result string) {
	if g.metrics != nil {
		g.metrics.InboundMessages.WithLabelValues(result).Inc()
	}
}

// Count returns the number of sockets held by this process.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Shutdown refuses new sockets, sends a going-away close frame to every open
// one and waits until their disconnect triggers have fired or ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		g.closeWith(c, websocket.CloseGoingAway, "server shutting down")
	}
	slog.Info("WebSocket gateway closing connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		g.serving.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for websocket connections: %w", ctx.Err())
	}
}
