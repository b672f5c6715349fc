// Package api exposes the wakeup alarm over HTTP: observable state,
// partial configuration updates and the manual trigger.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wakeupd/internal/wakeup"

	"go.uber.org/zap"
)

// Server provides the HTTP API for the wakeup service
type Server struct {
	alarm      *wakeup.Alarm
	logger     *zap.Logger
	server     *http.Server
	saveConfig func() error

	// updateMu serializes configuration updates: saveConfig reads the
	// applied state and rewrites the config file, so overlapping requests
	// must not interleave.
	updateMu sync.Mutex
}

// NewServer creates a new API server. saveConfig, when non-nil, is called
// after a successful configuration update to persist the applied options;
// persistence failures are logged but do not fail the request.
func NewServer(alarm *wakeup.Alarm, logger *zap.Logger, port int, saveConfig func() error) *Server {
	s := &Server{
		alarm:      alarm,
		logger:     logger,
		saveConfig: saveConfig,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/api/alarm", s.handleGetAlarm)
	mux.HandleFunc("/api/alarm/config", s.handleSetConfig)
	mux.HandleFunc("/api/alarm/trigger", s.handleTrigger)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// ConfigResponse reports the outcome of a configuration update.
type ConfigResponse struct {
	// Errors lists the individually rejected fields, if any. Recognized
	// valid fields are applied even when others are rejected.
	Errors []string      `json:"errors,omitempty"`
	Alarm  wakeup.Status `json:"alarm"`
}

// handleGetAlarm returns the alarm's observable state as JSON
func (s *Server) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.alarm.Status())

	s.logger.Debug("Alarm state request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleSetConfig applies a partial configuration update
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var patch wakeup.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.logger.Warn("Invalid config payload", zap.Error(err))
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	errs := s.alarm.ApplyPatch(patch)

	response := ConfigResponse{Alarm: s.alarm.Status()}
	for _, err := range errs {
		response.Errors = append(response.Errors, err.Error())
	}

	if s.saveConfig != nil {
		if err := s.saveConfig(); err != nil {
			s.logger.Error("Failed to persist configuration", zap.Error(err))
		}
	}

	s.logger.Info("Configuration update applied",
		zap.Int("rejected_fields", len(errs)),
		zap.String("remote_addr", r.RemoteAddr))

	s.writeJSON(w, http.StatusOK, response)
}

// handleTrigger runs the alarm immediately, bypassing the presence gate
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The run takes as long as the fades; don't hold the request open.
	go s.alarm.Trigger()

	s.logger.Info("Manual trigger accepted",
		zap.String("remote_addr", r.RemoteAddr))

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
	})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := []Endpoint{
		{
			Path:        "/",
			Method:      "GET",
			Description: "This sitemap - lists all available API endpoints",
		},
		{
			Path:        "/api/alarm",
			Method:      "GET",
			Description: "Get the alarm's observable state",
		},
		{
			Path:        "/api/alarm/config",
			Method:      "POST",
			Description: "Apply a partial configuration update (JSON body)",
		},
		{
			Path:        "/api/alarm/trigger",
			Method:      "POST",
			Description: "Run the alarm now, bypassing the presence gate",
		},
		{
			Path:        "/health",
			Method:      "GET",
			Description: "Health check endpoint - returns {\"status\": \"ok\"}",
		},
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "Wakeup Service API\n")
	fmt.Fprintf(w, "==================\n\n")
	fmt.Fprintf(w, "Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-22s %s\n", ep.Method, ep.Path, ep.Description)
	}
	fmt.Fprintf(w, "\nExamples:\n\n")
	fmt.Fprintf(w, "  curl http://localhost:8081/api/alarm | jq\n")
	fmt.Fprintf(w, "  curl -X POST http://localhost:8081/api/alarm/config -d '{\"time_of_day\": \"06:45\"}'\n")
	fmt.Fprintf(w, "  curl -X POST http://localhost:8081/api/alarm/trigger\n\n")

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// writeJSON encodes v as the JSON response body
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
