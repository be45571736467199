package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
)

var (
	errUnknownConnection = fmt.Errorf("connection no longer attached: %w", domain.ErrRecipientGone)
	errForeignConnection = errors.New("connection attached to another instance")
	errDeliveryTimeout   = errors.New("delivery timed out")
	errHubStopped        = errors.New("hub stopped")
)

const idSeparator = ":"

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connectionID string
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connectionID string
	connection   *websocket.Conn
}

type enqueueCmd struct {
	baseHubCmd
	connectionID string
	payload      []byte
	replyChannel chan enqueueReply
}

type enqueueReply struct {
	result <-chan error
	err    error
}

type getClientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub tracks the sockets attached to this instance and implements
// domain.DeliveryChannel over them. All map access happens on the actor
// goroutine; per-socket writers handle slow clients.
//
// Identities minted by a hub carry its instance prefix. Only identities with
// that prefix are reported gone when absent; any other identity belongs to a
// socket this hub cannot see, so its failure is transient.
type Hub struct {
	cmdCh           chan hubCmd
	prefix          string
	clock           clockwork.Clock
	clients         map[string]*clientWriter
	metrics         *metrics.WebSocketMetrics
	deliveryTimeout time.Duration
	done            chan struct{}
}

var _ domain.DeliveryChannel = (*Hub)(nil)

// NewHub starts the hub actor. deliveryTimeout bounds how long Send waits for
// a socket write before reporting a transient failure. An empty instanceID
// makes the hub the sole owner of every identity.
func NewHub(clock clockwork.Clock, m *metrics.WebSocketMetrics, deliveryTimeout time.Duration, instanceID string) *Hub {
	prefix := ""
	if instanceID != "" {
		prefix = instanceID + idSeparator
	}
	h := &Hub{
		cmdCh:           make(chan hubCmd, 256),
		prefix:          prefix,
		clock:           clock,
		clients:         make(map[string]*clientWriter),
		metrics:         m,
		deliveryTimeout: deliveryTimeout,
		done:            make(chan struct{}),
	}
	go h.run()
	return h
}

// NewConnectionID mints an identity owned by this hub.
func (h *Hub) NewConnectionID() string {
	return h.prefix + uuid.NewString()
}

func (h *Hub) owns(connectionID string) bool {
	return strings.HasPrefix(connectionID, h.prefix)
}

// submit queues cmd for the actor, failing once the hub has stopped.
func (h *Hub) submit(cmd hubCmd) error {
	select {
	case <-h.done:
		return errHubStopped
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return errHubStopped
	}
}

// Register attaches conn under connectionID, replacing any previous socket for it.
func (h *Hub) Register(connectionID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if err := h.submit(registerCmd{connectionID: connectionID, connection: conn, errorChannel: errCh}); err != nil {
		return err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	case <-h.done:
		return errHubStopped
	}
}

// Unregister detaches the socket for connectionID if conn is still the attached one.
// It is a no-op once the hub has stopped.
func (h *Hub) Unregister(connectionID string, conn *websocket.Conn) {
	_ = h.submit(unregisterCmd{connectionID: connectionID, connection: conn})
}

// Send writes payload to the socket attached under connectionID. An unknown
// identity or a failed write wraps domain.ErrRecipientGone; a full buffer or
// an expired delivery timeout is transient.
func (h *Hub) Send(ctx context.Context, connectionID string, payload []byte) error {
	replyCh := make(chan enqueueReply, 1)
	if err := h.submit(enqueueCmd{connectionID: connectionID, payload: payload, replyChannel: replyCh}); err != nil {
		h.metrics.MessagesSent.WithLabelValues("error").Inc()
		return err
	}

	timer := h.clock.NewTimer(h.deliveryTimeout)
	defer timer.Stop()

	var reply enqueueReply
	select {
	case reply = <-replyCh:
	case <-timer.Chan():
		h.metrics.MessagesSent.WithLabelValues("timeout").Inc()
		return errDeliveryTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.metrics.MessagesSent.WithLabelValues("error").Inc()
		return errHubStopped
	}

	if reply.err != nil {
		h.metrics.MessagesSent.WithLabelValues(resultLabel(reply.err)).Inc()
		return reply.err
	}

	select {
	case err := <-reply.result:
		h.metrics.MessagesSent.WithLabelValues(resultLabel(err)).Inc()
		return err
	case <-timer.Chan():
		h.metrics.MessagesSent.WithLabelValues("timeout").Inc()
		return errDeliveryTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, domain.ErrRecipientGone):
		return "gone"
	case errors.Is(err, errBufferFull):
		return "buffer_full"
	case errors.Is(err, errForeignConnection):
		return "foreign"
	default:
		return "error"
	}
}

// ClientCount returns the number of attached sockets, or -1 if the hub is stuck.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if err := h.submit(getClientCountCmd{replyChannel: replyCh}); err != nil {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	case <-h.done:
		return 0
	}
}

// Stop closes every attached socket with a close frame and ends the actor.
func (h *Hub) Stop() {
	if err := h.submit(stopCmd{}); err != nil {
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAllClients("hub panic")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c)
		case enqueueCmd:
			h.handleEnqueue(c)
		case getClientCountCmd:
			c.replyChannel <- len(h.clients)
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if previous, exists := h.clients[c.connectionID]; exists {
		slog.Warn("Replacing socket for connection", "connection_id", c.connectionID)
		go previous.stop()
		h.metrics.ActiveConnections.Dec()
	}

	id, conn := c.connectionID, c.connection
	h.clients[id] = newClientWriter(conn, h.clock, func() { h.Unregister(id, conn) })
	h.metrics.ActiveConnections.Inc()

	slog.Debug("Client registered", "connection_id", id, "total_clients", len(h.clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(c unregisterCmd) {
	cw, exists := h.clients[c.connectionID]
	if !exists || cw.connection != c.connection {
		return
	}

	delete(h.clients, c.connectionID)
	h.metrics.ActiveConnections.Dec()
	// stop waits for the writer goroutine, which may itself be waiting on this actor.
	go cw.stop()

	slog.Debug("Client unregistered", "connection_id", c.connectionID, "remaining_clients", len(h.clients))
}

func (h *Hub) handleEnqueue(c enqueueCmd) {
	cw, exists := h.clients[c.connectionID]
	if !exists {
		err := errUnknownConnection
		if !h.owns(c.connectionID) {
			err = errForeignConnection
		}
		c.replyChannel <- enqueueReply{err: err}
		return
	}

	result, err := cw.enqueue(c.payload)
	c.replyChannel <- enqueueReply{result: result, err: err}
}

func (h *Hub) handleStop() {
	total := len(h.clients)
	slog.Info("Hub shutting down", "total_clients", total)

	h.closeAllClients("Server shutting down")

	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for id, cw := range h.clients {
		cw.stopGraceful(reason)
		delete(h.clients, id)
	}
	h.metrics.ActiveConnections.Set(0)
}
