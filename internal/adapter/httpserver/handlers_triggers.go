package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/correlation"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
)

// triggerEvent is the proxy event a gateway posts for connect, disconnect and
// send routes.
type triggerEvent struct {
	RequestContext struct {
		ConnectionID string `json:"connectionId"`
		DomainName   string `json:"domainName"`
		Stage        string `json:"stage"`
	} `json:"requestContext"`
	Body string `json:"body"`
}

func (s *Server) registerTriggerRoutes() {
	g := s.echo.Group("/triggers",
		middleware.BodyLimit(triggerBodyLimit),
		newRateLimiter(s.config.TriggerRateLimit, s.config.TriggerRateBurst, s.onRateLimited),
	)
	g.POST("/connect", s.handleConnect)
	g.POST("/disconnect", s.handleDisconnect)
	g.POST("/send", s.handleSend)

	s.echo.POST("/@connections/:id", s.handlePostToConnection, middleware.BodyLimit(triggerBodyLimit))
}

func (s *Server) handleConnect(c echo.Context) error {
	event, err := bindTriggerEvent(c)
	if err != nil {
		return err
	}

	resp, err := s.app.Connect(c.Request().Context(), event.RequestContext.ConnectionID)
	if err != nil {
		return err
	}
	return writeTriggerResponse(c, resp)
}

func (s *Server) handleDisconnect(c echo.Context) error {
	event, err := bindTriggerEvent(c)
	if err != nil {
		return err
	}

	resp, err := s.app.Disconnect(c.Request().Context(), event.RequestContext.ConnectionID)
	if err != nil {
		return err
	}
	return writeTriggerResponse(c, resp)
}

func (s *Server) handleSend(c echo.Context) error {
	event, err := bindTriggerEvent(c)
	if err != nil {
		return err
	}

	resp, err := s.app.Send(c.Request().Context(), domain.SendRequest{
		ConnectionID: event.RequestContext.ConnectionID,
		Body:         []byte(event.Body),
		Endpoint: domain.Endpoint{
			DomainName: event.RequestContext.DomainName,
			Stage:      event.RequestContext.Stage,
		},
	})
	if err != nil {
		return err
	}
	return writeTriggerResponse(c, resp)
}

// bindTriggerEvent decodes the proxy event and tags the request context with
// the connection it acts on.
func bindTriggerEvent(c echo.Context) (*triggerEvent, error) {
	var event triggerEvent
	if err := json.NewDecoder(c.Request().Body).Decode(&event); err != nil {
		return nil, apperrors.ValidationError("invalid trigger event", err)
	}
	if event.RequestContext.ConnectionID == "" {
		return nil, apperrors.ValidationError("requestContext.connectionId is required", nil)
	}

	ctx := correlation.WithConnectionID(c.Request().Context(), event.RequestContext.ConnectionID)
	c.SetRequest(c.Request().WithContext(ctx))
	return &event, nil
}

func writeTriggerResponse(c echo.Context, resp domain.Response) error {
	for k, v := range resp.Headers {
		c.Response().Header().Set(k, v)
	}
	if err := c.JSON(resp.StatusCode, map[string]string{"status": resp.Body}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handlePostToConnection is the management API of the in-process gateway.
func (s *Server) handlePostToConnection(c echo.Context) error {
	if s.gateway == nil {
		return apperrors.NotFoundError("no in-process gateway")
	}

	connectionID, err := url.PathUnescape(c.Param("id"))
	if err != nil || connectionID == "" {
		return apperrors.ValidationError("invalid connection id", err)
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return apperrors.ValidationError("failed to read body", err)
	}

	status, err := s.gateway.Push(c.Request().Context(), connectionID, data)
	switch status {
	case domain.DeliveryOK:
		return c.NoContent(http.StatusOK)
	case domain.DeliveryGone:
		if err := c.JSON(http.StatusGone, map[string]string{"message": "GoneException"}); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	default:
		return apperrors.ExternalError("delivery failed", err).WithContext("connection_id", connectionID)
	}
}
