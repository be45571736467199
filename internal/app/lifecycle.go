package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

// Response is the transport-agnostic answer to one lifecycle event.
type Response struct {
	StatusCode int
	Body       string
}

const (
	bodyConnected       = "Connected."
	bodyDisconnected    = "Disconnected."
	bodyDataSent        = "Data sent."
	bodyInvalidPayload  = "Invalid payload"
	bodyInvalidRoute    = "Invalid route key"
	bodyMissingIdentity = "Missing connection id"
)

// Broadcaster fans a payload out through a delivery channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel domain.DeliveryChannel, payload []byte) (domain.DeliveryReport, error)
}

// LifecycleHandler maps connect, disconnect and post events onto registry
// mutations and broadcasts. It holds no per-connection state, so events may
// be handled concurrently.
type LifecycleHandler struct {
	registry    domain.ConnectionRegistry
	broadcaster Broadcaster
	channels    domain.ChannelResolver
	ttl         time.Duration
	metrics     *metrics.LifecycleMetrics
}

// NewLifecycleHandler creates a handler. A non-positive ttl falls back to domain.DefaultConnectionTTL.
func NewLifecycleHandler(registry domain.ConnectionRegistry, broadcaster Broadcaster, channels domain.ChannelResolver, ttl time.Duration, m *metrics.LifecycleMetrics) *LifecycleHandler {
	if ttl <= 0 {
		ttl = domain.DefaultConnectionTTL
	}
	return &LifecycleHandler{
		registry:    registry,
		broadcaster: broadcaster,
		channels:    channels,
		ttl:         ttl,
		metrics:     m,
	}
}

// Handle processes one event and always produces a response.
func (h *LifecycleHandler) Handle(ctx context.Context, event domain.Event) Response {
	route, resp := h.dispatch(ctx, event)
	h.metrics.EventsTotal.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()
	return resp
}

func (h *LifecycleHandler) dispatch(ctx context.Context, event domain.Event) (string, Response) {
	switch e := event.(type) {
	case domain.ConnectEvent:
		return "connect", h.connect(ctx, e)
	case domain.DisconnectEvent:
		return "disconnect", h.disconnect(ctx, e)
	case domain.PostEvent:
		return "post", h.post(ctx, e)
	case domain.UnrecognizedEvent:
		slog.WarnContext(ctx, "Unrecognized route key", "route_key", e.RouteKey)
		return "unrecognized", Response{StatusCode: http.StatusBadRequest, Body: bodyInvalidRoute}
	default:
		slog.ErrorContext(ctx, "Unknown event type", "event", event)
		return "unrecognized", Response{StatusCode: http.StatusBadRequest, Body: bodyInvalidRoute}
	}
}

func (h *LifecycleHandler) connect(ctx context.Context, e domain.ConnectEvent) Response {
	if e.ConnectionID == "" {
		return Response{StatusCode: http.StatusBadRequest, Body: bodyMissingIdentity}
	}

	if err := h.registry.Upsert(ctx, e.ConnectionID, h.ttl); err != nil {
		slog.ErrorContext(ctx, "Failed to register connection", "connection_id", e.ConnectionID, "error", err)
		return Response{StatusCode: http.StatusInternalServerError, Body: "Failed to connect: " + err.Error()}
	}

	slog.InfoContext(ctx, "Connection registered", "connection_id", e.ConnectionID)
	return Response{StatusCode: http.StatusOK, Body: bodyConnected}
}

func (h *LifecycleHandler) disconnect(ctx context.Context, e domain.DisconnectEvent) Response {
	if e.ConnectionID == "" {
		return Response{StatusCode: http.StatusBadRequest, Body: bodyMissingIdentity}
	}

	if err := h.registry.Remove(ctx, e.ConnectionID); err != nil {
		slog.ErrorContext(ctx, "Failed to remove connection", "connection_id", e.ConnectionID, "error", err)
		return Response{StatusCode: http.StatusInternalServerError, Body: "Failed to disconnect: " + err.Error()}
	}

	slog.InfoContext(ctx, "Connection removed", "connection_id", e.ConnectionID)
	return Response{StatusCode: http.StatusOK, Body: bodyDisconnected}
}

func (h *LifecycleHandler) post(ctx context.Context, e domain.PostEvent) Response {
	payload, err := domain.DecodePostBody(e.Body)
	if err != nil {
		slog.DebugContext(ctx, "Rejected post body", "connection_id", e.ConnectionID, "error", err)
		return Response{StatusCode: http.StatusBadRequest, Body: bodyInvalidPayload}
	}

	channel, err := h.channels.ChannelFor(e.Endpoint)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve delivery channel", "endpoint", e.Endpoint, "error", err)
		return Response{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}

	report, err := h.broadcaster.Broadcast(ctx, channel, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Broadcast failed", "connection_id", e.ConnectionID, "error", err)
		return Response{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}

	slog.DebugContext(ctx, "Post broadcast", "connection_id", e.ConnectionID, "recipients", report.Recipients)
	return Response{StatusCode: http.StatusOK, Body: bodyDataSent}
}
