package websocket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

var (
	errBufferFull   = errors.New("client send buffer full")
	errWriterClosed = fmt.Errorf("client writer closed: %w", domain.ErrRecipientGone)
)

// outbound is one queued frame; result receives the write outcome.
type outbound struct {
	payload []byte
	result  chan error
}

// clientWriter owns all writes to one socket. Reads happen on the transport goroutine.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan outbound
	doneChannel chan struct{}
	onFailure   func()
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, onFailure func()) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan outbound, messageBufferSize),
		doneChannel: make(chan struct{}),
		onFailure:   onFailure,
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue queues payload without blocking. The returned channel receives the write result.
func (cw *clientWriter) enqueue(payload []byte) (<-chan error, error) {
	select {
	case <-cw.doneChannel:
		return nil, errWriterClosed
	default:
	}

	msg := outbound{payload: payload, result: make(chan error, 1)}
	select {
	case cw.sendChannel <- msg:
		return msg.result, nil
	default:
		return nil, errBufferFull
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()
	defer cw.drain()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				msg.result <- fmt.Errorf("write failed: %w: %w", domain.ErrRecipientGone, err)
				cw.fail()
				return
			}
			msg.result <- nil
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Ping failed - client likely disconnected
				cw.fail()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// drain answers every frame still queued once the writer has stopped.
func (cw *clientWriter) drain() {
	for {
		select {
		case msg := <-cw.sendChannel:
			msg.result <- errWriterClosed
		default:
			return
		}
	}
}

func (cw *clientWriter) fail() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	if cw.onFailure != nil {
		go cw.onFailure()
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		// Signal the run goroutine to exit first
		close(cw.doneChannel)

		// Wait for run goroutine to exit before writing close frame
		// This prevents concurrent writes to the WebSocket connection
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)

		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}

func (cw *clientWriter) updateReadDeadline() {
	deadline := cw.clock.Now().Add(pongDeadline)
	_ = cw.connection.SetReadDeadline(deadline)
}
