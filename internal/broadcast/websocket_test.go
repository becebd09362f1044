package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nexus-sim/internal/logging"
	"nexus-sim/internal/telemetry"
)

func startServer(t *testing.T, h *Hub, opts ServeOptions) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		Serve(logging.NewContext(context.Background(), logging.Discard()), h, ws, opts)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	return c
}

func TestServeAckInitialAndPong(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	url := startServer(t, h, ServeOptions{
		Initial: func() Message {
			return StateUpdate{Snapshot: telemetry.Snapshot{SystemIntegrity: 100}}
		},
	})
	c := dial(t, url)

	var ack map[string]any
	if err := c.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	if ack["type"] != TypeConnectionAck || ack["message"] != AckMessage {
		t.Fatalf("unexpected ack %v", ack)
	}
	var state map[string]any
	if err := c.ReadJSON(&state); err != nil {
		t.Fatal(err)
	}
	if state["type"] != TypeStateUpdate || state["system_integrity"] != 100.0 {
		t.Fatalf("unexpected initial state %v", state)
	}

	if err := c.WriteMessage(websocket.TextMessage, []byte(PingText)); err != nil {
		t.Fatal(err)
	}
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != PongText {
		t.Fatalf("expected pong, got %q", data)
	}
}

func TestServeSendsPingWhenIdle(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	url := startServer(t, h, ServeOptions{IdleTimeout: 50 * time.Millisecond})
	c := dial(t, url)

	var ack map[string]any
	if err := c.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != PingText {
		t.Fatalf("expected keepalive ping, got %q", data)
	}
	if h.Count() != 1 {
		t.Fatalf("subscriber should stay registered, got %d", h.Count())
	}
}

func TestServeUnregistersOnDisconnect(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	url := startServer(t, h, ServeOptions{})
	c := dial(t, url)
	var ack map[string]any
	if err := c.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	if h.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Count())
	}
	c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesWebsocketSubscribers(t *testing.T) {
	h := NewHub(nil, logging.Discard())
	url := startServer(t, h, ServeOptions{})
	clients := []*websocket.Conn{dial(t, url), dial(t, url)}
	for _, c := range clients {
		var ack map[string]any
		if err := c.ReadJSON(&ack); err != nil {
			t.Fatal(err)
		}
	}
	if n := h.Broadcast(RemediationResult{Success: true, ServiceID: "auth", Action: "failover"}); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, c := range clients {
		var msg map[string]any
		if err := c.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg["type"] != TypeRemediationResult || msg["action"] != "failover" {
			t.Fatalf("unexpected message %v", msg)
		}
	}
}
