package httpserver

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/domain"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
)

// eventRequest is the gateway's JSON event. Body is passed to the handler
// verbatim; its own envelope is decoded there.
type eventRequest struct {
	RouteKey     string `json:"routeKey"`
	ConnectionID string `json:"connectionId"`
	Body         string `json:"body"`
	Endpoint     string `json:"endpoint"`
}

func (s *Server) registerEventRoutes() {
	limiter := newRateLimiter(s.config.EventsRateLimit, s.config.EventsRateBurst)
	s.echo.POST("/events", s.handleEvent, limiter)
}

func (s *Server) handleEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid event json").WithField("cause", err.Error())
	}

	event := domain.NewEvent(req.RouteKey, req.ConnectionID, []byte(req.Body), req.Endpoint)
	resp := s.events.Handle(c.Request().Context(), event)

	if err := c.String(resp.StatusCode, resp.Body); err != nil {
		return fmt.Errorf("failed to write event response: %w", err)
	}
	return nil
}
