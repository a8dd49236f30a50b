// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/learnix/learnix-server/internal/answer"
	"github.com/learnix/learnix-server/internal/history"
	"github.com/learnix/learnix-server/internal/retrieval"
)

// Server wraps the HTTP API with its dependencies.
type Server struct {
	pipeline  *retrieval.Pipeline
	generator answer.Generator
	history   *history.Store
	logger    *slog.Logger
}

// Config holds server dependencies. History may be nil, in which case the
// chat endpoints return 503.
type Config struct {
	Pipeline  *retrieval.Pipeline
	Generator answer.Generator
	History   *history.Store
	Logger    *slog.Logger
}

// New creates a server with routes registered on a fresh mux.
func New(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:  cfg.Pipeline,
		generator: cfg.Generator,
		history:   cfg.History,
		logger:    logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /api/documents/{name}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/chat/history", s.handleChatHistory)
	mux.HandleFunc("DELETE /api/chat/history", s.handleClearChat)
	mux.HandleFunc("DELETE /api/chat/message/{id}", s.handleDeleteMessage)
	mux.HandleFunc("GET /api/chat/stats", s.handleChatStats)

	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
