// Package api provides the HTTP REST API for Niko.
//
// Endpoints:
//
//	POST /api/chat          - chat turn via the Genkit flow (JSON)
//	POST /api/chat/stream   - chat turn with SSE streaming
//	GET  /api/sessions      - list sessions for an owner
//	POST /api/sessions      - create a session
//	DELETE /api/sessions/{id} - delete a session
//	GET  /api/sessions/{id}/messages - list a session's messages
//	POST /api/notion        - save a word, word batch, or sentence
//	GET  /api/notion/words  - list words under study
//	GET  /api/prefs         - read user preferences
//	PUT  /api/prefs         - update user preferences
//	GET  /health            - liveness probe
//	GET  /ready             - readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging and recovery middleware
//   - ratelimit.go: per-IP rate limiting
//   - health.go: health check endpoints
//   - session.go: session management endpoints
//   - chat.go: chat endpoints via the Genkit flow
//   - notion.go: Notion save and listing endpoints
//   - prefs.go: preference endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikolang/niko/internal/chat"
	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/notion"
	"github.com/nikolang/niko/internal/session"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because chat responses stream for a while.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second

	// Default per-IP rate limit: sustained requests/sec and burst.
	defaultRateLimit = 10.0
	defaultBurst     = 30
)

// Server is the HTTP server for Niko's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health  *HealthHandler
	session *SessionHandler
	chat    *ChatHandler
	notion  *NotionHandler
	prefs   *PrefsHandler

	limiter *rateLimiter
}

// NewServer creates an HTTP server with all routes registered.
// chatFlow comes from chat.NewFlow; pool may be nil when the server
// runs without a database (readiness then reports unavailable).
func NewServer(pool *pgxpool.Pool, store *session.Store, chatFlow *chat.Flow, sink *notion.Sink, prefs *config.PrefsStore, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		health:  NewHealthHandler(pool, logger),
		session: NewSessionHandler(store, logger),
		chat:    NewChatHandler(chatFlow, logger),
		notion:  NewNotionHandler(sink, prefs, logger),
		prefs:   NewPrefsHandler(prefs, logger),
		limiter: newRateLimiter(defaultRateLimit, defaultBurst),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.notion.RegisterRoutes(mux)
	s.prefs.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, rate limit, logging, handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		rateLimitMiddleware(s.limiter, false, s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = config.DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
