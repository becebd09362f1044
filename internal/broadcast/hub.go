// Package broadcast fans state updates and discrete events out to a changing
// set of subscribers. A subscriber whose write fails is dropped.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"nexus-sim/internal/clock"
)

// AckMessage is the greeting sent to every new subscriber.
const AckMessage = "Connected to NEXUS PROTOCOL"

// Conn is one subscriber's outbound channel.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Hub tracks subscribers. Registration and fan-out share one mutex so a
// subscriber never observes messages out of order.
type Hub struct {
	mu          sync.Mutex
	clock       clock.Clock
	logger      *slog.Logger
	subscribers map[string]Conn
}

// NewHub creates an empty hub.
func NewHub(c clock.Clock, logger *slog.Logger) *Hub {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clock: c, logger: logger, subscribers: make(map[string]Conn)}
}

func newClientID() string {
	return uuid.NewString()[:8]
}

// Register adds conn and sends it a connection_ack. The ack is written under
// the hub lock, so it always precedes any broadcast. It returns the
// subscriber id.
func (h *Hub) Register(conn Conn) string {
	now := h.clock.Now()
	h.mu.Lock()
	id := newClientID()
	for _, taken := h.subscribers[id]; taken; _, taken = h.subscribers[id] {
		id = newClientID()
	}
	h.subscribers[id] = conn
	total := len(h.subscribers)
	ack := ConnectionAck{Message: AckMessage, ClientID: id}.prepare(now)
	if err := conn.WriteJSON(ack); err != nil {
		h.logger.Error("send to subscriber failed", "client_id", id, "type", TypeConnectionAck, "err", err)
	}
	h.mu.Unlock()

	h.logger.Info("subscriber connected", "client_id", id, "total", total)
	return id
}

// Unregister removes and closes a subscriber. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.subscribers[id]
	delete(h.subscribers, id)
	total := len(h.subscribers)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.Close()
	h.logger.Info("subscriber disconnected", "client_id", id, "total", total)
}

// SendTo delivers msg to one subscriber. Failures are logged and returned;
// the subscriber stays registered.
func (h *Hub) SendTo(id string, msg Message) error {
	out := msg.prepare(h.clock.Now())
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.subscribers[id]
	if !ok {
		return nil
	}
	if err := conn.WriteJSON(out); err != nil {
		h.logger.Error("send to subscriber failed", "client_id", id, "type", msg.MessageType(), "err", err)
		return err
	}
	return nil
}

// Broadcast delivers msg to every subscriber and removes those whose write
// failed. It returns the number of successful deliveries.
func (h *Hub) Broadcast(msg Message) int {
	out := msg.prepare(h.clock.Now())
	h.mu.Lock()
	if len(h.subscribers) == 0 {
		h.mu.Unlock()
		return 0
	}
	delivered := 0
	var failed []Conn
	for id, conn := range h.subscribers {
		if err := conn.WriteJSON(out); err != nil {
			h.logger.Error("broadcast to subscriber failed", "client_id", id, "type", msg.MessageType(), "err", err)
			delete(h.subscribers, id)
			failed = append(failed, conn)
			continue
		}
		delivered++
	}
	h.mu.Unlock()

	for _, conn := range failed {
		_ = conn.Close()
	}
	return delivered
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// CloseAll closes and removes every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.subscribers
	h.subscribers = make(map[string]Conn)
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	if len(conns) > 0 {
		h.logger.Info("closed all subscribers", "count", len(conns))
	}
}
