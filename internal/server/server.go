// Package server exposes the completion daemon over HTTP.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"ccd/internal/buffers"
	"ccd/internal/config"
	"ccd/internal/dispatch"
	ccderr "ccd/internal/errors"
	"ccd/internal/logging"
	"ccd/internal/stats"
	"ccd/internal/tucache"
	"ccd/internal/version"
	"ccd/internal/watcher"
)

// Server is the daemon HTTP front.
type Server struct {
	config     config.ServerConfig
	logger     *logging.Logger
	dispatcher *dispatch.Dispatcher
	cache      *tucache.Cache
	stats      *stats.Store
	watcher    *watcher.Watcher

	httpServer *http.Server
	startedAt  time.Time
}

// New creates a server. stats and watcher may be nil when disabled.
func New(cfg config.ServerConfig, d *dispatch.Dispatcher, cache *tucache.Cache, st *stats.Store, w *watcher.Watcher, logger *logging.Logger) *Server {
	s := &Server{
		config:     cfg,
		logger:     logger,
		dispatcher: d,
		cache:      cache,
		stats:      st,
		watcher:    w,
		startedAt:  time.Now(),
	}
	s.httpServer = s.setupServer()
	return s
}

func (s *Server) setupServer() *http.Server {
	mux := http.NewServeMux()

	// Health endpoint (no auth required)
	mux.HandleFunc("/health", s.handleHealth)

	// API endpoints (auth required)
	mux.Handle("/api/v1/", s.withAuth(s.apiRouter()))

	addr := fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)

	return &http.Server{
		Addr:         addr,
		Handler:      gzhttp.GzipHandler(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) apiRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/complete", s.handleComplete)
	mux.HandleFunc("/api/v1/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/v1/files/close", s.handleFileClose)
	mux.HandleFunc("/api/v1/flags/invalidate", s.handleFlagsInvalidate)
	mux.HandleFunc("/api/v1/status", s.handleStatus)

	return mux
}

// Handler returns the fully wired HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Daemon listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
		"auth": s.config.Auth.Enabled,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// APIResponse is the standard API response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    APIMeta     `json:"meta"`
}

// APIError represents an API error
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// APIMeta contains response metadata
type APIMeta struct {
	Duration      int64  `json:"duration"` // milliseconds
	DaemonVersion string `json:"daemonVersion"`
}

// requestBuffer is the wire form of an unsaved editor buffer.
type requestBuffer struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type completeRequest struct {
	File    string          `json:"file"`
	Line    int             `json:"line"`
	Column  int             `json:"column"`
	Limit   int             `json:"limit"`
	Buffers []requestBuffer `json:"buffers"`
}

type diagnosticsRequest struct {
	File    string          `json:"file"`
	Buffers []requestBuffer `json:"buffers"`
}

type fileRequest struct {
	File string `json:"file"`
}

type pathRequest struct {
	Path string `json:"path"`
}

func snapshotFrom(reqBufs []requestBuffer) (*buffers.Snapshot, error) {
	if len(reqBufs) == 0 {
		return buffers.EmptySnapshot(), nil
	}
	bufs := make([]buffers.Buffer, 0, len(reqBufs))
	for _, rb := range reqBufs {
		bufs = append(bufs, buffers.Buffer{Path: rb.Path, Content: []byte(rb.Content)})
	}
	return buffers.NewSnapshot(bufs)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Uptime:  formatDuration(time.Since(s.startedAt)),
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	if req.File == "" {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing file")
		return
	}

	snap, err := snapshotFrom(req.Buffers)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	start := time.Now()
	res, err := s.dispatcher.RequestCompletion(r.Context(), req.File, snap, req.Line, req.Column, req.Limit)
	if err != nil {
		s.writeCcdError(w, err)
		return
	}
	s.writeData(w, res, time.Since(start))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req diagnosticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	if req.File == "" {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing file")
		return
	}

	snap, err := snapshotFrom(req.Buffers)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	start := time.Now()
	res, err := s.dispatcher.RequestDiagnostics(r.Context(), req.File, snap)
	if err != nil {
		s.writeCcdError(w, err)
		return
	}
	s.writeData(w, res, time.Since(start))
}

func (s *Server) handleFileClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.File == "" {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing file")
		return
	}

	start := time.Now()
	if err := s.dispatcher.NotifyFileClosed(req.File); err != nil {
		s.writeCcdError(w, err)
		return
	}
	s.writeData(w, map[string]interface{}{"closed": req.File}, time.Since(start))
}

func (s *Server) handleFlagsInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing path")
		return
	}

	start := time.Now()
	s.dispatcher.NotifyFlagsChanged(req.Path)
	s.writeData(w, map[string]interface{}{"invalidated": req.Path}, time.Since(start))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	status := map[string]interface{}{
		"version":     version.Version,
		"uptime":      formatDuration(time.Since(s.startedAt)),
		"cachedUnits": s.cache.Len(),
	}
	if s.watcher != nil {
		status["watchedDirs"] = s.watcher.WatchedDirs()
	}
	if s.stats != nil {
		if totals, err := s.stats.Totals(); err == nil {
			status["totals"] = totals
		}
	}
	s.writeData(w, status, time.Since(start))
}

// statusFor maps an error code to an HTTP status.
func statusFor(code ccderr.ErrorCode) int {
	switch code {
	case ccderr.InvalidPosition, ccderr.FlagsUnavailable, ccderr.ParseFailed:
		return http.StatusUnprocessableEntity
	case ccderr.QueueFull:
		return http.StatusTooManyRequests
	case ccderr.Timeout:
		return http.StatusGatewayTimeout
	case ccderr.Cancelled:
		return http.StatusConflict
	case ccderr.LibraryFault:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeCcdError(w http.ResponseWriter, err error) {
	var ce *ccderr.CcdError
	if !stderrors.As(err, &ce) {
		s.writeError(w, http.StatusInternalServerError, string(ccderr.InternalError), err.Error())
		return
	}
	resp := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    string(ce.Code),
			Message: ce.Message,
			Details: ce.Details,
		},
		Meta: APIMeta{DaemonVersion: version.Version},
	}
	s.writeJSON(w, statusFor(ce.Code), resp)
}

func (s *Server) writeData(w http.ResponseWriter, data interface{}, elapsed time.Duration) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta: APIMeta{
			Duration:      elapsed.Milliseconds(),
			DaemonVersion: version.Version,
		},
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	resp := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: APIMeta{DaemonVersion: version.Version},
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
