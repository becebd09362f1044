package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/clock"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/orchestrator"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/sim"
	"nexus-sim/internal/state"
	"nexus-sim/internal/telemetry"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	fc := clock.Fake(epoch)
	reg := telemetry.DefaultRegistry()
	eng, err := scenario.NewEngine(reg, fc, nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	orc, err := orchestrator.New(orchestrator.Options{
		Aggregator: state.New(reg, fc),
		Hub:        broadcast.NewHub(fc, logging.Discard()),
		Simulator:  sim.NewSimulator(reg, eng, nil, 10, fc),
		Clock:      fc,
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	opts.Logger = logging.Discard()
	return NewServer(orc, opts), orc
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func testEvent(id string, status telemetry.Status) telemetry.Event {
	return telemetry.Event{
		Timestamp:     epoch,
		ServiceID:     id,
		Status:        status,
		LatencyMS:     3500,
		ErrorRate:     0.25,
		TrafficVolume: 10,
		Message:       "Failover initiated",
		Metadata:      map[string]any{},
	}
}

func TestHandleIndex(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	w := do(t, s.Handler(), http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	decodeBody(t, w, &body)
	if body["name"] != "NEXUS PROTOCOL" || body["mode"] != "steady_state" || body["welcome_audio"] != "/static/audio/welcome.mp3" {
		t.Fatalf("unexpected body %v", body)
	}
	if w := do(t, s.Handler(), http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	w := do(t, s.Handler(), http.MethodGet, "/api/health", "")
	var body healthResponse
	decodeBody(t, w, &body)
	if body.Status != "healthy" || len(body.Services) != 5 || body.Services["ai-brain"] != telemetry.StatusHealthy {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestHandleState(t *testing.T) {
	s, orc := newTestServer(t, Options{})
	if err := orc.Ingest(context.Background(), testEvent("ai-brain", telemetry.StatusCritical)); err != nil {
		t.Fatal(err)
	}
	w := do(t, s.Handler(), http.MethodGet, "/api/state", "")
	var snap telemetry.Snapshot
	decodeBody(t, w, &snap)
	if snap.SystemIntegrity != 80 || len(snap.Services) != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestHandleRecent(t *testing.T) {
	s, orc := newTestServer(t, Options{})
	for _, id := range []string{"gateway", "auth", "payment"} {
		if err := orc.Ingest(context.Background(), testEvent(id, telemetry.StatusWarning)); err != nil {
			t.Fatal(err)
		}
	}
	w := do(t, s.Handler(), http.MethodGet, "/api/metrics/recent?limit=2", "")
	var events []telemetry.Event
	decodeBody(t, w, &events)
	if len(events) != 2 || events[0].ServiceID != "auth" || events[1].ServiceID != "payment" {
		t.Fatalf("unexpected events %+v", events)
	}

	w = do(t, s.Handler(), http.MethodGet, "/api/metrics/recent", "")
	decodeBody(t, w, &events)
	if len(events) != 3 {
		t.Fatalf("expected all 3 events, got %d", len(events))
	}

	if w := do(t, s.Handler(), http.MethodGet, "/api/metrics/recent?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleRemediate(t *testing.T) {
	s, orc := newTestServer(t, Options{})
	if err := orc.Ingest(context.Background(), testEvent("database", telemetry.StatusCritical)); err != nil {
		t.Fatal(err)
	}

	w := do(t, s.Handler(), http.MethodPost, "/api/remediate", `{"service_id":"database","action":"scale_up"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp orchestrator.RemediationResponse
	decodeBody(t, w, &resp)
	if !resp.Success || resp.PreviousStatus != telemetry.StatusCritical || resp.NewStatus != telemetry.StatusHealthy {
		t.Fatalf("unexpected response %+v", resp)
	}

	cases := []struct {
		body string
		code int
	}{
		{`{"service_id":"mainframe","action":"scale_up"}`, http.StatusNotFound},
		{`{"service_id":"database","action":"reboot"}`, http.StatusBadRequest},
		{`{not json`, http.StatusBadRequest},
	}
	for _, c := range cases {
		if w := do(t, s.Handler(), http.MethodPost, "/api/remediate", c.body); w.Code != c.code {
			t.Errorf("%s: expected %d, got %d", c.body, c.code, w.Code)
		}
	}
	if w := do(t, s.Handler(), http.MethodGet, "/api/remediate", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}
}

func TestHandleWebhook(t *testing.T) {
	s, orc := newTestServer(t, Options{})
	w := do(t, s.Handler(), http.MethodPost, "/api/datadog/webhook",
		`{"alert_id":"77","alert_title":"Payment errors","alert_type":"error","event_type":"query_alert_monitor","alert_scope":"service_id:payment"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp orchestrator.AlertResponse
	decodeBody(t, w, &resp)
	if !resp.Received || resp.ServiceID != "payment" || resp.Analysis == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if orc.Aggregator().ActiveIncidents() != 1 {
		t.Fatalf("expected one incident, got %d", orc.Aggregator().ActiveIncidents())
	}
	if w := do(t, s.Handler(), http.MethodPost, "/api/datadog/webhook", `{"alert_type":"error"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without title, got %d", w.Code)
	}
}

func TestHandleChaosMode(t *testing.T) {
	s, orc := newTestServer(t, Options{})
	w := do(t, s.Handler(), http.MethodPost, "/api/chaos/mode/latency_spike", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if orc.Mode() != scenario.ModeLatencySpike {
		t.Fatalf("engine mode not changed: %s", orc.Mode())
	}
	w = do(t, s.Handler(), http.MethodPost, "/api/chaos/mode/meltdown", "")
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "cascading_failure") {
		t.Fatalf("expected 400 listing modes, got %d: %s", w.Code, w.Body)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, Options{CORSOrigins: []string{"http://localhost:3000"}})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/remediate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" ||
		w.Header().Get("Access-Control-Allow-Headers") != "content-type" {
		t.Fatalf("missing CORS headers: %v", w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS header for foreign origin")
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "audio"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "audio", "welcome.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestServer(t, Options{StaticDir: dir})
	w := do(t, s.Handler(), http.MethodGet, "/static/audio/welcome.mp3", "")
	if w.Code != http.StatusOK || w.Body.String() != "ID3" {
		t.Fatalf("expected clip, got %d %q", w.Code, w.Body)
	}
}

func TestWebsocketReceivesAckAndState(t *testing.T) {
	s, orc := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/nexus"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ack, initial map[string]any
	if err := c.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	if ack["type"] != broadcast.TypeConnectionAck {
		t.Fatalf("unexpected first message %v", ack)
	}
	if err := c.ReadJSON(&initial); err != nil {
		t.Fatal(err)
	}
	if initial["type"] != broadcast.TypeStateUpdate || initial["system_integrity"] != 100.0 {
		t.Fatalf("unexpected initial state %v", initial)
	}

	if orc.Hub().Count() != 1 {
		t.Fatalf("expected one subscriber, got %d", orc.Hub().Count())
	}
	orc.BroadcastState()
	var update map[string]any
	if err := c.ReadJSON(&update); err != nil {
		t.Fatal(err)
	}
	if update["type"] != broadcast.TypeStateUpdate {
		t.Fatalf("unexpected update %v", update)
	}
}
