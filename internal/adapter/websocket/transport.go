package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/correlation"
)

const disconnectTimeout = 5 * time.Second

// EventHandler consumes the lifecycle events a socket produces.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) app.Response
}

// Transport upgrades HTTP requests to sockets and turns socket lifecycle into
// events: open is a connect, each text frame is a post, close is a disconnect.
type Transport struct {
	upgrader websocket.Upgrader
	hub      *Hub
	events   EventHandler
	limits   *ConnectionLimits
	metrics  *metrics.WebSocketMetrics
}

// NewTransport creates a transport. A nil limits accepts every socket.
func NewTransport(hub *Hub, events EventHandler, checkOrigin func(*http.Request) bool, limits *ConnectionLimits, m *metrics.WebSocketMetrics) *Transport {
	return &Transport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		hub:     hub,
		events:  events,
		limits:  limits,
		metrics: m,
	}
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.limits != nil {
		ip := clientIP(r)
		if ok, reason := t.limits.Acquire(ip); !ok {
			t.metrics.Rejected.WithLabelValues(string(reason)).Inc()
			slog.WarnContext(r.Context(), "Socket refused", "ip", ip, "reason", reason)
			status := http.StatusServiceUnavailable
			if reason == LimitReasonRate {
				status = http.StatusTooManyRequests
			}
			http.Error(w, "Too many connections", status)
			return
		}
		defer t.limits.Release(ip)
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	id := t.hub.NewConnectionID()
	ctx, _ := correlation.Ensure(context.WithoutCancel(r.Context()))

	if err := t.hub.Register(id, conn); err != nil {
		slog.ErrorContext(ctx, "Failed to attach socket", "connection_id", id, "error", err)
		_ = conn.Close()
		return
	}

	resp := t.events.Handle(ctx, domain.ConnectEvent{ConnectionID: id})
	if resp.StatusCode != http.StatusOK {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, truncateReason(resp.Body))
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeDeadline))
		t.hub.Unregister(id, conn)
		return
	}

	t.readLoop(ctx, id, conn)

	t.hub.Unregister(id, conn)
	disconnectCtx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()
	t.events.Handle(disconnectCtx, domain.DisconnectEvent{ConnectionID: id})
}

func (t *Transport) readLoop(ctx context.Context, id string, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "WebSocket read failed", "connection_id", id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
		t.metrics.FramesReceived.Inc()

		frameCtx := correlation.WithID(ctx, correlation.NewID())
		resp := t.events.Handle(frameCtx, domain.PostEvent{ConnectionID: id, Body: data})
		if resp.StatusCode != http.StatusOK {
			// The sender is told why its frame was rejected; delivery is best effort.
			if err := t.hub.Send(frameCtx, id, []byte(resp.Body)); err != nil {
				slog.DebugContext(frameCtx, "Failed to report post error to sender", "connection_id", id, "error", err)
			}
		}
	}
}

// truncateReason keeps a close reason within the 123-byte control frame limit.
func truncateReason(reason string) string {
	const maxReason = 123
	if len(reason) <= maxReason {
		return reason
	}
	return reason[:maxReason]
}
