// Package api implements the HTTP interface: a JSON chat API, session
// and capability introspection, a WebSocket event stream, and the
// embedded chat UI.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nbriggs/artificer/internal/agent"
	"github.com/nbriggs/artificer/internal/events"
	"github.com/nbriggs/artificer/internal/memory"
)

//go:embed static/*
var staticFiles embed.FS

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// SessionFactory builds a fresh agent loop for a new session. Each
// session gets its own conversation history and capability registry.
type SessionFactory func(sessionID string) *agent.Loop

// Server is the HTTP API server.
type Server struct {
	address    string
	port       int
	logger     *slog.Logger
	bus        *events.Bus
	transcript *memory.Store
	newSession SessionFactory
	server     *http.Server

	mu       sync.Mutex
	sessions map[string]*agent.Loop
}

// Options configures a Server.
type Options struct {
	Address    string
	Port       int
	Logger     *slog.Logger
	Bus        *events.Bus
	Transcript *memory.Store
	NewSession SessionFactory
}

// NewServer creates an API server.
func NewServer(opts Options) *Server {
	return &Server{
		address:    opts.Address,
		port:       opts.Port,
		logger:     opts.Logger,
		bus:        opts.Bus,
		transcript: opts.Transcript,
		newSession: opts.NewSession,
		sessions:   make(map[string]*agent.Loop),
	}
}

// Handler builds the route table. Split from Start so tests can drive
// the mux through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)

	mux.HandleFunc("GET /v1/conversations", s.handleConversations)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("GET /v1/conversations/{id}/toolcalls", s.handleToolCalls)

	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Embedded chat UI at the root.
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /", http.FileServer(http.FS(sub)))

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
	}

	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// session returns the agent loop for id, creating it on first use.
func (s *Server) session(id string) *agent.Loop {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loop, ok := s.sessions[id]; ok {
		return loop
	}
	loop := s.newSession(id)
	s.sessions[id] = loop
	s.logger.Info("session created", "session", id)
	return loop
}

func (s *Server) sessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{"message": message, "code": code},
	}, s.logger)
}
