package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nexus-sim/internal/logging"
)

// Keepalive defaults.
const (
	DefaultWriteWait   = 10 * time.Second
	DefaultIdleTimeout = 30 * time.Second
)

// Text frames of the keepalive exchange.
const (
	PingText = "ping"
	PongText = "pong"
)

// WSConn adapts a gorilla websocket to Conn. Writes are serialised and
// bounded by a write deadline.
type WSConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	writeWait time.Duration
}

// NewWSConn wraps conn.
func NewWSConn(conn *websocket.Conn, writeWait time.Duration) *WSConn {
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	return &WSConn{conn: conn, writeWait: writeWait}
}

// WriteJSON sends v as a JSON text frame.
func (c *WSConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// WriteText sends a raw text frame.
func (c *WSConn) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// Close closes the underlying connection.
func (c *WSConn) Close() error {
	return c.conn.Close()
}

// ServeOptions tunes Serve.
type ServeOptions struct {
	// Initial, when set, produces the message sent right after the ack.
	Initial     func() Message
	IdleTimeout time.Duration
	WriteWait   time.Duration
}

// Serve registers ws with the hub and runs its read loop until the peer
// goes away or ctx is cancelled. An inbound "ping" is answered with "pong";
// after IdleTimeout without inbound traffic a "ping" is sent. Liveness is
// best effort: a dead peer is only detected by a failed write or read.
func Serve(ctx context.Context, hub *Hub, ws *websocket.Conn, opts ServeOptions) {
	log := logging.FromContext(ctx)
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	conn := NewWSConn(ws, opts.WriteWait)
	id := hub.Register(conn)
	defer hub.Unregister(id)
	defer conn.Close()

	if opts.Initial != nil {
		if err := hub.SendTo(id, opts.Initial()); err != nil {
			return
		}
	}

	inbound := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- string(data):
			case <-done:
				return
			}
		}
	}()

	idle := time.NewTimer(opts.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			log.Debug("subscriber read loop ended", "client_id", id, "err", err)
			return
		case msg := <-inbound:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(opts.IdleTimeout)
			if msg == PingText {
				if err := conn.WriteText(PongText); err != nil {
					log.Debug("pong failed", "client_id", id, "err", err)
					return
				}
			}
		case <-idle.C:
			if err := conn.WriteText(PingText); err != nil {
				log.Debug("keepalive ping failed", "client_id", id, "err", err)
				return
			}
			idle.Reset(opts.IdleTimeout)
		}
	}
}
