// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the sandboxed tools over HTTP.
// server.go implements the router, handlers and server lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/workspace"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr keeps the API on loopback unless configured otherwise.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize bounds a tool-call request body.
	MaxRequestBodySize = 1 << 20

	// ShutdownTimeout bounds graceful shutdown in Serve.
	ShutdownTimeout = 10 * time.Second
)

// ============================================================================
// OPTIONS
// ============================================================================

// Options configures a Server.
type Options struct {
	// Addr is the listen address (host:port)
	Addr string

	// Token enables bearer authentication on /v1 when non-empty
	Token string

	// RateLimit is requests per second per client; 0 disables limiting
	RateLimit float64

	// Burst is the per-client bucket size
	Burst int

	// Version is reported by /health
	Version string
}

// OptionsFromConfig maps the [server] config section.
func OptionsFromConfig(cfg config.ServerConfig, version string) Options {
	return Options{
		Addr:      cfg.HTTPAddr,
		Token:     cfg.Token,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Version:   version,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server serves the tool API.
type Server struct {
	opts      Options
	executor  *tools.Executor
	workspace *workspace.Context
	router    *http.ServeMux
	limiter   *RateLimiter
	started   time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a server for executor. ws may be nil, which disables /v1/context.
func New(executor *tools.Executor, ws *workspace.Context, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	s := &Server{
		opts:      opts,
		executor:  executor,
		workspace: ws,
		router:    http.NewServeMux(),
		limiter:   NewRateLimiter(opts.RateLimit, opts.Burst),
		started:   time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /v1/tools", s.handleListTools)
	v1.HandleFunc("POST /v1/tools/{name}", s.handleCallTool)
	if s.workspace != nil {
		v1.HandleFunc("GET /v1/context", s.handleContext)
	}
	s.router.Handle("/v1/", Chain(
		AuthMiddleware(s.opts.Token),
		RateLimitMiddleware(s.limiter),
	)(v1))
}

// Handler returns the router wrapped in the full middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		RequestIDMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(),
	)(s.router)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.opts.Addr }

// Start listens on the configured address and blocks until the server stops.
// It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ln)
}

// ServeListener serves on ln until Shutdown.
func (s *Server) ServeListener(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A tool call may take its full 30 s deadline plus encoding.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	logging.Info().
		Add(logging.Component("server")).
		Add(logging.Str("addr", ln.Addr().String())).
		Add(logging.Str("version", s.opts.Version)).
		Add(logging.Bool("auth", s.opts.Token != "")).
		Msg("http server listening")

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve runs Start until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	logging.Info().Add(logging.Component("server")).Msg("http server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HANDLERS
// ============================================================================

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Tools         int    `json:"tools"`
	Calls         int    `json:"calls"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.executor.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       s.opts.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Tools:         len(s.executor.Registry().All()),
		Calls:         stats.TotalExecutions,
	})
}

// ToolInfo is the wire description of one tool.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Risk        string                 `json:"risk"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	all := s.executor.Registry().All()
	infos := make([]ToolInfo, 0, len(all))
	for _, t := range all {
		infos = append(infos, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			Risk:        t.RiskLevel.String(),
			InputSchema: t.Schema.JSONSchema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": infos})
}

// CallResponse is the wire form of a tools.Result.
type CallResponse struct {
	Tool       string `json:"tool"`
	RequestID  string `json:"request_id,omitempty"`
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
	LinesCount int    `json:"lines_count,omitempty"`
}

// handleCallTool runs one tool. Tool failures are results, not HTTP errors;
// only requests that never reach a tool get a 4xx.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request_error")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read request body", "invalid_request_error")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	result, _ := s.executor.CallJSON(r.Context(), name, body)
	writeJSON(w, statusForClass(result.Class), CallResponse{
		Tool:       name,
		RequestID:  RequestID(r.Context()),
		Success:    result.Success,
		Output:     result.Output,
		Error:      result.Error,
		ErrorClass: string(result.Class),
		DurationMS: result.Duration.Milliseconds(),
		Truncated:  result.Truncated,
		LinesCount: result.LinesCount,
	})
}

func statusForClass(class tools.ErrorClass) int {
	switch class {
	case tools.ClassUnknownTool:
		return http.StatusNotFound
	case tools.ClassArguments:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

type contextResponse struct {
	Base       string    `json:"base"`
	Context    string    `json:"context"`
	GatheredAt time.Time `json:"gathered_at,omitempty"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	text, err := s.workspace.Build(r.Context())
	if err != nil {
		logging.Error().
			Add(logging.Component("server")).
			Add(logging.ErrorField(err)).
			Msg("building workspace context failed")
		writeError(w, http.StatusInternalServerError, "workspace context unavailable", "server_error")
		return
	}
	writeJSON(w, http.StatusOK, contextResponse{
		Base:       s.workspace.Base(),
		Context:    text,
		GatheredAt: s.workspace.GatheredAt(),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().
			Add(logging.Component("server")).
			Add(logging.ErrorField(err)).
			Msg("writing response failed")
	}
}

// errorBody mirrors the {"error": {...}} shape of common LLM APIs.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: errType, Code: status}})
}
