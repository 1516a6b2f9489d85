// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/rigrun-launcher/internal/bridge"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP bridge.
	DefaultPort = 8765

	// MaxRequestBodySize bounds invoke arguments (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// DefaultHealthTimeout bounds the runtime probe in /health.
	DefaultHealthTimeout = 2 * time.Second

	// eventBuffer is the per-client event backlog before events are dropped.
	eventBuffer = 1024
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Invoker is the bridge surface the server exposes.
type Invoker interface {
	Invoke(ctx context.Context, channel string, args json.RawMessage) (any, error)
	Channels() []string
	OnOllamaStream(fn func(relay.Event)) (unsubscribe func())
}

// WindowLocator finds the live window, if any.
type WindowLocator interface {
	Current() *surface.Window
}

// Pinger probes the model runtime.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats tracks bridge usage since start.
type ServerStats struct {
	StartTime     time.Time
	Invocations   int64
	Failures      int64
	EventsSent    int64
	EventsDropped int64
	Clients       int64

	mu        sync.Mutex
	byChannel map[string]int64
}

// NewServerStats creates an empty stats tracker.
func NewServerStats() *ServerStats {
	return &ServerStats{
		StartTime: time.Now(),
		byChannel: make(map[string]int64),
	}
}

// RecordInvoke records one invocation of channel.
func (s *ServerStats) RecordInvoke(channel string, failed bool) {
	atomic.AddInt64(&s.Invocations, 1)
	if failed {
		atomic.AddInt64(&s.Failures, 1)
	}
	s.mu.Lock()
	s.byChannel[channel]++
	s.mu.Unlock()
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Invocations   int64            `json:"invocations"`
	Failures      int64            `json:"failures"`
	EventsSent    int64            `json:"events_sent"`
	EventsDropped int64            `json:"events_dropped"`
	Clients       int64            `json:"clients"`
	ByChannel     map[string]int64 `json:"by_channel"`
}

// Snapshot returns a consistent copy of the counters.
func (s *ServerStats) Snapshot() StatsResponse {
	s.mu.Lock()
	by := make(map[string]int64, len(s.byChannel))
	for k, v := range s.byChannel {
		by[k] = v
	}
	s.mu.Unlock()

	return StatsResponse{
		UptimeSeconds: int64(time.Since(s.StartTime).Seconds()),
		Invocations:   atomic.LoadInt64(&s.Invocations),
		Failures:      atomic.LoadInt64(&s.Failures),
		EventsSent:    atomic.LoadInt64(&s.EventsSent),
		EventsDropped: atomic.LoadInt64(&s.EventsDropped),
		Clients:       atomic.LoadInt64(&s.Clients),
		ByChannel:     by,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Config holds server settings.
type Config struct {
	Port           int
	AllowedOrigins []string
	// RateLimit is sustained invocations per second per client IP.
	RateLimit float64
	Version   string
}

// Server exposes a Bridge over HTTP, Server-Sent Events and WebSocket.
type Server struct {
	cfg     Config
	bridge  Invoker
	window  WindowLocator
	runtime Pinger
	logger  *slog.Logger

	router  *http.ServeMux
	limiter *RateLimiter
	stats   *ServerStats

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithWindow lets /api/window report the live window.
func WithWindow(loc WindowLocator) Option {
	return func(s *Server) { s.window = loc }
}

// WithRuntime lets /health probe the model runtime.
func WithRuntime(p Pinger) Option {
	return func(s *Server) { s.runtime = p }
}

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server for b.
func New(cfg Config, b Invoker, opts ...Option) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	s := &Server{
		cfg:    cfg,
		bridge: b,
		logger: slog.Default(),
		router: http.NewServeMux(),
		stats:  NewServerStats(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = NewRateLimiter(cfg.RateLimit, int(cfg.RateLimit*2)+1)
	s.setupRoutes()
	return s
}

// Stats returns the live counters.
func (s *Server) Stats() *ServerStats {
	return s.stats
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.Handle("POST /api/invoke/{channel}",
		RateLimitMiddleware(s.limiter, s.logger)(http.HandlerFunc(s.handleInvoke)))
	s.router.HandleFunc("GET /api/channels", s.handleChannels)
	s.router.HandleFunc("GET /api/events", s.handleEvents)
	s.router.HandleFunc("GET /api/ws", s.handleWebSocket)
	s.router.HandleFunc("GET /api/window", s.handleWindow)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(s.cfg.AllowedOrigins),
	)(s.router)
}

// ============================================================================
// INVOKE
// ============================================================================

// handleInvoke handles POST /api/invoke/{channel}. The body is the argument
// list (positional array or object); the reply is the channel's result.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	// Chat streams outlive the request; the relay detaches its own context.
	result, err := s.bridge.Invoke(r.Context(), channel, body)
	s.stats.RecordInvoke(channel, err != nil)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrUnknownChannel):
		return http.StatusNotFound
	case bridge.IsArgumentError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleChannels handles GET /api/channels.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.bridge.Channels()
	sort.Strings(channels)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"events":   []string{bridge.EventChannel},
	})
}

// ============================================================================
// WINDOW, HEALTH AND STATS
// ============================================================================

// handleWindow handles GET /api/window.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	var win *surface.Window
	if s.window != nil {
		win = s.window.Current()
	}
	if win == nil {
		s.writeError(w, http.StatusNotFound, "no window")
		return
	}
	s.writeJSON(w, http.StatusOK, win.Snapshot())
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	RuntimeStatus string `json:"runtime_status"`
	Window        bool   `json:"window"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		RuntimeStatus: "not_configured",
	}

	if s.runtime != nil {
		ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
		defer cancel()
		if err := s.runtime.Ping(ctx); err == nil {
			health.RuntimeStatus = "ok"
		} else {
			health.RuntimeStatus = "unavailable"
			health.Status = "degraded"
		}
	}
	if s.window != nil {
		health.Window = s.window.Current() != nil
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the loopback interface and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("bridge server listening", "addr", ln.Addr().String(), "version", s.cfg.Version)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("bridge server shutting down")
	s.limiter.Stop()
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// ErrorBody is the JSON shape of transport-level failures.
type ErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	var body ErrorBody
	body.Error.Message = message
	body.Error.Code = status
	s.writeJSON(w, status, body)
}
