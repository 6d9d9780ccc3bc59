package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/fanout/internal/domain"
)

// Service maps the three gateway triggers onto the registry and broadcaster.
// Every trigger is handled independently; the store is the only shared state.
type Service struct {
	registry        *Registry
	broadcaster     *Broadcaster
	resolver        domain.ChannelResolver
	defaultEndpoint domain.Endpoint
}

// NewService creates the trigger service. defaultEndpoint is used for send
// triggers that carry no routing information.
func NewService(registry *Registry, broadcaster *Broadcaster, resolver domain.ChannelResolver, defaultEndpoint domain.Endpoint) *Service {
	return &Service{
		registry:        registry,
		broadcaster:     broadcaster,
		resolver:        resolver,
		defaultEndpoint: defaultEndpoint,
	}
}

// Connect records a newly opened connection.
func (s *Service) Connect(ctx context.Context, connectionID string) (domain.Response, error) {
	if err := s.registry.Add(ctx, connectionID); err != nil {
		return domain.Response{}, err
	}
	slog.InfoContext(ctx, "Client connected", "connection_id", connectionID)
	return domain.OK(domain.StatusConnected), nil
}

// Disconnect forgets a closed connection.
func (s *Service) Disconnect(ctx context.Context, connectionID string) (domain.Response, error) {
	if err := s.registry.Remove(ctx, connectionID); err != nil {
		return domain.Response{}, err
	}
	slog.InfoContext(ctx, "Client disconnected", "connection_id", connectionID)
	return domain.OK(domain.StatusDisconnected), nil
}

// Send decodes {"message": "..."} from the request body and broadcasts it to every
// registered connection. Malformed input fails before any delivery is attempted.
func (s *Service) Send(ctx context.Context, req domain.SendRequest) (domain.Response, error) {
	if req.ConnectionID == "" {
		return domain.Response{}, fmt.Errorf("%w: empty sender connection id", domain.ErrMalformedInput)
	}

	message, err := ParsePayload(req.Body)
	if err != nil {
		return domain.Response{}, err
	}

	endpoint := req.Endpoint
	if endpoint.IsZero() {
		endpoint = s.defaultEndpoint
	}
	channel, err := s.resolver.Channel(endpoint)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%w: resolve delivery endpoint: %w", domain.ErrMalformedInput, err)
	}

	if _, err := s.broadcaster.BroadcastAndReconcile(ctx, channel, req.ConnectionID, message); err != nil {
		return domain.Response{}, err
	}
	return domain.OK(domain.StatusMessageSent), nil
}

// Connections returns a snapshot of the registry.
func (s *Service) Connections(ctx context.Context) ([]string, error) {
	return s.registry.Enumerate(ctx)
}

// ParsePayload extracts the message from a send trigger body.
func ParsePayload(body []byte) (string, error) {
	var payload domain.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decode payload: %w", domain.ErrMalformedInput, err)
	}
	if payload.Message == nil {
		return "", fmt.Errorf("%w: payload has no message field", domain.ErrMalformedInput)
	}
	return *payload.Message, nil
}
