// Package server provides vigil's optional local preview server.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/vigil/internal/capture"
	"github.com/ayusman/vigil/internal/config"
	"github.com/ayusman/vigil/internal/server/api"
	"github.com/ayusman/vigil/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the server configuration. Nil collaborators disable their routes.
type Config struct {
	Store      *store.Store
	Frames     *capture.FrameBuffer
	Thresholds config.Thresholds
	// Enabled reports whether monitoring is active, for the health endpoint.
	Enabled func() bool
}

// Server is the preview HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Store, s.config.Thresholds))
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
		s.mux.HandleFunc("/{$}", s.handleIndex)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Enabled != nil {
		response["monitoring"] = s.config.Enabled()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

const indexHTML = `<!doctype html>
<html><head><title>Driver Monitor</title></head>
<body style="margin:0;background:#111">
<img src="/api/stream" alt="Driver Monitor" style="display:block;margin:auto;max-width:100%">
</body></html>
`

// handleIndex serves a page showing the annotated stream.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

// ListenAndServe starts the HTTP server on addr and blocks until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server. A later ListenAndServe returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
