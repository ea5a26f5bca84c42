// Package api exposes the chat engine over a JSON HTTP API.
//
// Endpoints:
//   - POST   /api/v1/sessions               create a session
//   - GET    /api/v1/sessions               list sessions
//   - GET    /api/v1/sessions/{id}          fetch one session
//   - GET    /api/v1/sessions/{id}/messages fetch session history
//   - PATCH  /api/v1/sessions/{id}          rename a session
//   - DELETE /api/v1/sessions/{id}          delete a session
//   - POST   /api/v1/chat                   synchronous chat turn
//   - POST   /api/v1/chat/stream            streaming chat turn (SSE)
//   - GET    /api/v1/search                 direct knowledge-base query
//   - POST   /api/v1/knowledge/reload       rebuild the knowledge index
//   - GET    /health                        liveness probe
//   - GET    /ready                         readiness probe (DB ping)
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/sage/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       log.Logger
	Agent        ChatRunner     // Required
	SessionStore SessionStore   // Required
	Index        KnowledgeIndex // Required
	Pool         *pgxpool.Pool  // Optional: nil disables pool stats in /ready
	RateRPS      float64        // Rate limiter refill per IP (0 = default 10/s)
	RateBurst    int            // Rate limiter burst size per IP (0 = default 30)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("chat agent is required")
	}
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("knowledge index is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With("component", "api")

	sh := &sessionHandler{store: cfg.SessionStore, logger: logger}
	ch := &chatHandler{agent: cfg.Agent, logger: logger}
	kh := &searchHandler{idx: cfg.Index, logger: logger}

	mux := http.NewServeMux()

	// Session CRUD
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}", sh.rename)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	// Knowledge base
	mux.HandleFunc("GET /api/v1/search", kh.search)
	mux.HandleFunc("POST /api/v1/knowledge/reload", kh.reload)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must be before Logging so request_id shows up in log
	// attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
