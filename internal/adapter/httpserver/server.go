// Package httpserver exposes the event gateway, the websocket upgrade and
// the operational endpoints over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
)

// EventHandler answers one lifecycle event.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) app.Response
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	events           EventHandler
	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, events EventHandler, websocketHandler, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		events:           events,
		websocketHandler: websocketHandler,
		metricsHandler:   metricsHandler,
		httpMetrics:      httpMetrics,
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()

	return srv
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
