// Package admin serves the REST control surface and the subscriber
// websocket.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/orchestrator"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/state"
	"nexus-sim/internal/telemetry"
)

// Version is reported by the info and health endpoints.
const Version = "1.0.0"

// Options tunes the server.
type Options struct {
	CORSOrigins []string
	// StaticDir is served under /static/. Empty disables it.
	StaticDir string
	// IdleTimeout and WriteWait tune the websocket keepalive.
	IdleTimeout time.Duration
	WriteWait   time.Duration
	Logger      *slog.Logger
}

type Server struct {
	orc      *orchestrator.Orchestrator
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewServer creates a server over orc.
func NewServer(orc *orchestrator.Orchestrator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orc:    orc,
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx: logging.NewContext(context.Background(), logger),
	}
}

// Handler returns the routed handler wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/metrics/recent", s.handleRecent)
	mux.HandleFunc("POST /api/remediate", s.handleRemediate)
	mux.HandleFunc("POST /api/datadog/webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/chaos/mode/{mode}", s.handleChaosMode)
	mux.HandleFunc("GET /ws/nexus", s.handleWebsocket)
	if s.opts.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.opts.StaticDir))))
	}
	return cors(s.opts.CORSOrigins, mux)
}

// Start listens on addr and serves until ctx is cancelled. Failing to bind
// is returned immediately.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.ctx = logging.NewContext(ctx, s.logger)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("admin server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("admin server shutdown", "err", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":          "NEXUS PROTOCOL",
		"version":       Version,
		"status":        "operational",
		"mode":          s.orc.Mode(),
		"welcome_audio": s.orc.WelcomeAudio(r.Context()),
	})
}

type healthResponse struct {
	Status    string                      `json:"status"`
	Version   string                      `json:"version"`
	Timestamp time.Time                   `json:"timestamp"`
	Services  map[string]telemetry.Status `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	agg := s.orc.Aggregator()
	services := make(map[string]telemetry.Status)
	for _, st := range agg.Services() {
		services[st.ServiceID] = st.Status
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Services:  services,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.Aggregator().Snapshot())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := state.DefaultHistoryCapacity
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	events := s.orc.Aggregator().RecentEvents(limit)
	if limit == 0 {
		events = events[:0]
	}
	writeJSON(w, http.StatusOK, events)
}

type remediationRequest struct {
	ServiceID string `json:"service_id"`
	Action    string `json:"action"`
}

func (s *Server) handleRemediate(w http.ResponseWriter, r *http.Request) {
	var req remediationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := s.orc.Remediate(s.requestContext(r), req.ServiceID, req.Action)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownService):
		writeError(w, http.StatusNotFound, "Service "+req.ServiceID+" not found")
	case errors.Is(err, orchestrator.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var hook orchestrator.Webhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if hook.AlertTitle == "" {
		writeError(w, http.StatusBadRequest, "alert_title is required")
		return
	}
	writeJSON(w, http.StatusOK, s.orc.HandleAlert(s.requestContext(r), hook))
}

func (s *Server) handleChaosMode(w http.ResponseWriter, r *http.Request) {
	mode, err := s.orc.SetMode(r.PathValue("mode"))
	switch {
	case errors.Is(err, scenario.ErrUnknownMode):
		names := make([]string, len(scenario.Modes))
		for i, m := range scenario.Modes {
			names[i] = string(m)
		}
		writeError(w, http.StatusBadRequest, "Invalid mode. Choose from: "+strings.Join(names, ", "))
	case errors.Is(err, orchestrator.ErrNoSimulator):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "success": true})
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	agg := s.orc.Aggregator()
	broadcast.Serve(s.ctx, s.orc.Hub(), ws, broadcast.ServeOptions{
		Initial:     func() broadcast.Message { return broadcast.StateUpdate{Snapshot: agg.Snapshot()} },
		IdleTimeout: s.opts.IdleTimeout,
		WriteWait:   s.opts.WriteWait,
	})
}

// requestContext carries the server logger into request-scoped calls.
func (s *Server) requestContext(r *http.Request) context.Context {
	return logging.NewContext(r.Context(), s.logger)
}
