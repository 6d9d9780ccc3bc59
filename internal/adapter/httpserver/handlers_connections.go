package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/domain"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
)

type connectionsResponse struct {
	Connections []string `json:"connections"`
	Count       int      `json:"count"`
}

type connectionDetailsResponse struct {
	Connections []domain.Connection `json:"connections"`
	Count       int                 `json:"count"`
}

func (s *Server) registerConnectionRoutes() {
	s.echo.GET("/connections", s.handleConnections)
	s.echo.GET("/connections/details", s.handleConnectionDetails)
}

func (s *Server) handleConnections(c echo.Context) error {
	ids, err := s.app.Connections(c.Request().Context())
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}

	if err := c.JSON(http.StatusOK, connectionsResponse{Connections: ids, Count: len(ids)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleConnectionDetails(c echo.Context) error {
	if s.lister == nil {
		return apperrors.NotFoundError("registry store does not record connection details")
	}

	conns, err := s.lister.List(c.Request().Context())
	if err != nil {
		return fmt.Errorf("list connections: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if conns == nil {
		conns = []domain.Connection{}
	}

	if err := c.JSON(http.StatusOK, connectionDetailsResponse{Connections: conns, Count: len(conns)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
