// Package server provides the HTTP server for the mudra fingerspelling translator.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   *session.Session
	Speaker   speech.Speaker
	// Reload reloads letter templates into the session.
	Reload func(context.Context) error
	// WordsChanged refreshes the dictionary after custom words change.
	WordsChanged func() error
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// BusHealthy adds the event bus state to /api/health when set.
	BusHealthy       func() bool
	RequiredHands    int
	DefaultTolerance float64
	Logger           *zap.Logger
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    *zap.Logger
	events *EventsHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    log.Named("http"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Register letter and word APIs if Store is configured
	if s.config.Store != nil {
		letterHandler := api.NewLetterHandler(s.config.Store, s.config.RequiredHands, s.config.DefaultTolerance)
		samplesHandler := api.NewSamplesHandler(s.config.Store, s.config.Reload, s.log)

		// Route /api/letters/{id}/samples and /api/letters/{id}/train to the samples handler
		letterRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/samples") || strings.HasSuffix(r.URL.Path, "/train") {
				samplesHandler.ServeHTTP(w, r)
				return
			}
			letterHandler.ServeHTTP(w, r)
		})
		s.mux.Handle("/api/letters", letterRouter)
		s.mux.Handle("/api/letters/", letterRouter)

		wordsHandler := api.NewWordsHandler(s.config.Store, s.config.WordsChanged, s.log)
		s.mux.Handle("/api/words", wordsHandler)
		s.mux.Handle("/api/words/", wordsHandler)
	}

	if s.config.Session != nil {
		sessionHandler := api.NewSessionHandler(s.config.Session, s.config.Speaker, s.config.Reload, s.log)
		s.mux.Handle("/api/session", sessionHandler)
		s.mux.Handle("/api/session/", sessionHandler)

		s.events = NewEventsHandler(s.config.Session, s.log)
		s.mux.Handle("/api/events", s.events)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
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
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Session != nil {
		response["session"] = s.config.Session.Status().String()
	}
	if s.config.BusHealthy != nil {
		if s.config.BusHealthy() {
			response["bus"] = "connected"
		} else {
			response["bus"] = "disconnected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Close releases the session subscription held by the events endpoint.
func (s *Server) Close() {
	if s.events != nil {
		s.events.Close()
	}
}
