package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fulfillsync/mirror/internal/auth"
	"github.com/fulfillsync/mirror/internal/engine"
	"github.com/fulfillsync/mirror/internal/mapper"
	"github.com/fulfillsync/mirror/internal/progress"
	"github.com/fulfillsync/mirror/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// startedResp acknowledges an asynchronously started sync.
type startedResp struct {
	Entity  string `json:"entity"`
	Mode    string `json:"mode"`
	Started bool   `json:"started"`
}

// SyncAll runs one sync per entity kind concurrently and returns the
// per-entity results. ?full=1 forces full syncs; the default is
// incremental.
func (s *Server) SyncAll(w http.ResponseWriter, r *http.Request) {
	full := r.URL.Query().Get("full") == "1"

	log.Info().
		Str("operator", auth.Operator(r.Context())).
		Bool("full", full).
		Msg("sync all requested")

	results := s.Sched.SyncAll(r.Context(), full)
	writeJSON(w, http.StatusOK, results)
}

// SyncEntity launches one background sync. ?mode=full|incremental|days
// selects the mode; days takes ?days=N (default 7).
func (s *Server) SyncEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := mapper.ParseKind(chi.URLParam(r, "entity"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown entity")
		return
	}

	var mode engine.Mode
	switch r.URL.Query().Get("mode") {
	case "", "incremental":
		mode = engine.Mode{Kind: engine.Incremental}
	case "full":
		mode = engine.Mode{Kind: engine.Full}
	case "days":
		mode = engine.Mode{Kind: engine.DaysWindow, Days: parseDays(r.URL.Query().Get("days"), 7)}
	default:
		writeError(w, http.StatusBadRequest, "mode must be full, incremental or days")
		return
	}

	log.Info().
		Str("operator", auth.Operator(r.Context())).
		Str("entity", string(kind)).
		Str("mode", mode.Encode()).
		Msg("sync requested")

	if _, err := s.Sched.Start(kind, mode); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, startedResp{Entity: string(kind), Mode: mode.Encode(), Started: true})
}

// RetrySync re-runs a failed attempt synchronously and returns its
// outcome.
func (s *Server) RetrySync(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "syncID")

	log.Info().
		Str("operator", auth.Operator(r.Context())).
		Str("syncId", syncID).
		Msg("retry requested")

	res, err := s.Sched.Retry(r.Context(), syncID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, progress.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusResp is the progress row plus derived convenience fields.
type statusResp struct {
	Entity          string             `json:"entity"`
	Progress        *progress.Progress `json:"progress,omitempty"`
	PercentComplete *float64           `json:"percentComplete,omitempty"`
	Message         string             `json:"message"`
	TotalCount      int64              `json:"totalCount"`
	LastSyncDate    *string            `json:"lastSyncDate,omitempty"`
	LastSyncCount   int                `json:"lastSyncCount"`
}

// SyncStatus reports the latest attempt, row count and last-sync mark
// for one entity.
func (s *Server) SyncStatus(w http.ResponseWriter, r *http.Request) {
	kind, ok := mapper.ParseKind(chi.URLParam(r, "entity"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown entity")
		return
	}
	entity := string(kind)
	ctx := r.Context()

	resp := statusResp{Entity: entity}

	p, err := s.Store.Latest(ctx, entity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	resp.Progress = p
	resp.Message = statusMessage(p)
	if p != nil && p.TotalItems != nil && *p.TotalItems > 0 {
		pct := 100 * float64(p.ItemsProcessed) / float64(*p.TotalItems)
		if pct > 100 {
			pct = 100
		}
		resp.PercentComplete = &pct
	}

	// The count and last-sync mark are informational; their failures
	// degrade the response, not the request.
	if n, err := s.Store.Count(ctx, mapper.SpecFor(kind).Parent); err != nil {
		log.Warn().Err(err).Str("entity", entity).Msg("row count lookup failed")
	} else {
		resp.TotalCount = n
	}
	if last, count, err := s.Store.LastSync(ctx, entity); err != nil {
		log.Warn().Err(err).Str("entity", entity).Msg("last sync lookup failed")
	} else {
		if last != nil {
			str := last.UTC().Format(time.RFC3339)
			resp.LastSyncDate = &str
		}
		resp.LastSyncCount = count
	}

	writeJSON(w, http.StatusOK, resp)
}

func statusMessage(p *progress.Progress) string {
	if p == nil {
		return "never synced"
	}
	switch p.Status {
	case progress.StatusInProgress:
		return fmt.Sprintf("sync running, %d items processed", p.ItemsProcessed)
	case progress.StatusCompleted:
		return fmt.Sprintf("last sync completed with %d items", p.ItemsProcessed)
	case progress.StatusFailed:
		return "last sync failed"
	case progress.StatusErrorRecoverable:
		return fmt.Sprintf("sync interrupted at offset %d, retry to resume", p.CurrentOffset)
	case progress.StatusAbandoned:
		return "last attempt was superseded"
	}
	return string(p.Status)
}

// statsResp aggregates limiter counters and running jobs.
type statsResp struct {
	RateLimiter any      `json:"rateLimiter"`
	Running     []string `json:"running"`
}

// Stats reports limiter counters and the entities currently syncing.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResp{
		RateLimiter: s.Limiter.Stats(),
		Running:     s.Sched.Running(),
	})
}
