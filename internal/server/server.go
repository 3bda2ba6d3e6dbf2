// Package server provides the HTTP server for the drumcam web UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/metrics"
	"github.com/ayusman/drumcam/internal/render"
	"github.com/ayusman/drumcam/internal/server/api"
	"github.com/ayusman/drumcam/internal/session"
	"github.com/ayusman/drumcam/internal/store"
)

// Config holds the server configuration. Nil collaborators disable the
// routes that need them.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller *session.Controller
	Bank       *drum.Bank
	Mixer      *drum.Mixer
	Overlay    *render.Overlay
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Server represents the HTTP server for the drumcam application.
type Server struct {
	config     Config
	mux        *http.ServeMux
	start      time.Time
	logger     *slog.Logger
	detections *DetectionsHandler
	httpServer *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger,
	}
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Controller != nil {
		sessionHandler := api.NewSessionHandler(s.config.Controller, s.config.Store, s.logger)
		s.mux.Handle("/api/session", sessionHandler)
		s.mux.Handle("/api/session/", sessionHandler)

		s.detections = NewDetectionsHandler(s.logger)
		s.config.Controller.OnFrame(s.detections.Broadcast)
		s.mux.Handle("/api/detections", s.detections)
	}

	if s.config.Bank != nil {
		instrumentHandler := api.NewInstrumentHandler(s.config.Bank, s.config.Store, s.logger)
		s.mux.Handle("/api/instruments", instrumentHandler)
		s.mux.Handle("/api/instruments/", instrumentHandler)

		if s.config.Mixer != nil {
			mixerHandler := api.NewMixerHandler(s.config.Mixer, s.config.Bank, s.config.Store, s.logger)
			s.mux.Handle("/api/mixer", mixerHandler)
			s.mux.Handle("/api/mixer/", mixerHandler)
		}
	}

	if s.config.Overlay != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Overlay, s.config.Metrics))
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Detections returns the detections WebSocket hub, or nil when no
// controller is configured.
func (s *Server) Detections() *DetectionsHandler {
	return s.detections
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Controller != nil {
		response["model_ready"] = s.config.Controller.Ready()
		response["state"] = s.config.Controller.State().String()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until it fails or Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes WebSocket clients and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.detections != nil {
		s.detections.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
