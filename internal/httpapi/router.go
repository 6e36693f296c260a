// Package httpapi is the operator surface: start syncs, retry failed
// attempts, inspect progress and limiter statistics. It is a thin
// binding over the scheduler and the progress store; the sync engine
// itself never depends on it.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fulfillsync/mirror/internal/auth"
	"github.com/fulfillsync/mirror/internal/progress"
	"github.com/fulfillsync/mirror/internal/ratelimit"
	"github.com/fulfillsync/mirror/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// StatusStore is the read-only slice of the progress store the status
// endpoint needs.
type StatusStore interface {
	Latest(ctx context.Context, entity string) (*progress.Progress, error)
	Count(ctx context.Context, table string) (int64, error)
	LastSync(ctx context.Context, entity string) (*time.Time, int, error)
}

// Server holds dependencies for HTTP handlers
type Server struct {
	Sched   *scheduler.Scheduler
	Store   StatusStore
	Limiter *ratelimit.Limiter
}

// errorResp is the JSON error envelope.
type errorResp struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResp{Error: msg})
}

// parseDays parses a positive day-count query param with a default.
func parseDays(q string, def int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Routes creates the HTTP router with all operator endpoints
func (s *Server) Routes(jwt auth.JWTCfg) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (unauthenticated)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	// Operator endpoints require authentication
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwt))

		r.Post("/sync", s.SyncAll)
		r.Post("/sync/retry/{syncID}", s.RetrySync)
		r.Post("/sync/{entity}", s.SyncEntity)
		r.Get("/sync/{entity}/status", s.SyncStatus)
		r.Get("/stats", s.Stats)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
