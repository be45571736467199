package httpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
)

type mockEventHandler struct {
	handleFn func(ctx context.Context, event domain.Event) app.Response
}

func (m *mockEventHandler) Handle(ctx context.Context, event domain.Event) app.Response {
	if m.handleFn != nil {
		return m.handleFn(ctx, event)
	}
	return app.Response{StatusCode: http.StatusOK, Body: "ok"}
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "development",
		Port:            "0",
		EventsRateLimit: 1000,
		EventsRateBurst: 1000,
	}
}

func newTestServer(t *testing.T, events EventHandler, opts ...func(*config.Config, *Server)) *Server {
	t.Helper()
	cfg := testConfig()
	probe := &Server{}
	for _, opt := range opts {
		opt(cfg, probe)
	}
	srv := NewServer(cfg, events, probe.websocketHandler, probe.metricsHandler, nil, probe.healthChecks)
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*config.Config, *Server) {
	return func(_ *config.Config, s *Server) {
		s.healthChecks = checks
	}
}

func withRateLimit(ratePerSecond float64, burst int) func(*config.Config, *Server) {
	return func(cfg *config.Config, _ *Server) {
		cfg.EventsRateLimit = ratePerSecond
		cfg.EventsRateBurst = burst
	}
}

func withWebsocketHandler(h http.Handler) func(*config.Config, *Server) {
	return func(_ *config.Config, s *Server) {
		s.websocketHandler = h
	}
}

func withMetricsHandler(h http.Handler) func(*config.Config, *Server) {
	return func(_ *config.Config, s *Server) {
		s.metricsHandler = h
	}
}
