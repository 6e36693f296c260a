// Package engine orchestrates one entity sync: fetch stream → map →
// write, with resumable progress, cooperative cancellation and
// per-record skip semantics.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/fulfillsync/mirror/internal/mapper"
	"github.com/fulfillsync/mirror/internal/progress"
	"github.com/fulfillsync/mirror/internal/vendorapi"
	"github.com/fulfillsync/mirror/internal/writer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ChunkWriter applies one chunk of mapped records transactionally.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, spec mapper.TableSpec, recs []*mapper.Mapped) error
}

// ProgressStore persists checkpoints and the per-entity sync mark.
type ProgressStore interface {
	Start(ctx context.Context, entity, mode string, fresh bool) (*progress.Progress, error)
	Get(ctx context.Context, syncID string) (*progress.Progress, error)
	Reactivate(ctx context.Context, p *progress.Progress) error
	Update(ctx context.Context, p *progress.Progress, patch progress.Patch) error
	Complete(ctx context.Context, p *progress.Progress, success bool) error
	LastSyncDate(ctx context.Context, entity, parentTable string) time.Time
	SetLastSync(ctx context.Context, entity string, at time.Time, count int) error
}

// Config carries the engine tunables.
type Config struct {
	PageLimit        int
	BatchSize        int
	RollingWindow    time.Duration
	InterParentPause time.Duration
}

// Engine runs syncs. One Engine serves all entity kinds; concurrency
// is the scheduler's concern, and within one sync everything is
// strictly sequential.
type Engine struct {
	api    *vendorapi.Client
	store  ProgressStore
	writer ChunkWriter
	cfg    Config
}

// New wires an Engine.
func New(api *vendorapi.Client, store ProgressStore, w ChunkWriter, cfg Config) *Engine {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = 30 * 24 * time.Hour
	}
	return &Engine{api: api, store: store, writer: w, cfg: cfg}
}

// Result is the user-visible outcome of one sync.
type Result struct {
	Entity         string `json:"entity"`
	SyncID         string `json:"syncId"`
	Mode           string `json:"mode"`
	Success        bool   `json:"success"`
	ItemsProcessed int    `json:"itemsProcessed"`
	SkippedRecords int    `json:"skippedRecords,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Sync executes one sync for an entity kind under the given mode and
// reports its outcome. Failures are encoded in the Result; per-record
// mapping failures are skipped and counted, never fatal.
func (e *Engine) Sync(ctx context.Context, kind mapper.Kind, mode Mode) Result {
	espec, ok := entitySpecs[kind]
	if !ok {
		return Result{Entity: string(kind), Success: false, Error: "unknown entity kind"}
	}
	tspec := mapper.SpecFor(kind)
	entity := string(kind)

	p, effective, err := e.acquire(ctx, entity, mode)
	if err != nil {
		return Result{Entity: entity, Mode: mode.Encode(), Success: false, Error: err.Error()}
	}

	logger := log.With().
		Str("entity", entity).
		Str("syncId", p.SyncID).
		Str("mode", effective.Encode()).
		Logger()

	since, cutoff := e.window(ctx, entity, tspec.Parent, effective)

	logger.Info().
		Int("offset", p.CurrentOffset).
		Time("since", since).
		Msg("sync starting")

	pages := e.api.Pages(vendorapi.PageRequest{
		Path:        espec.listPath,
		Params:      espec.listParams,
		Limit:       e.cfg.PageLimit,
		StartOffset: p.CurrentOffset,
		Since:       since,
		Cutoff:      cutoff,
	})

	// Dedup is per-run: a parent may be re-processed across sessions
	// but never twice within one.
	seen := make(map[int64]struct{})
	items := p.ItemsProcessed
	batches := p.BatchNumber
	skipped := 0

	for {
		page, err := pages.Next(ctx)
		if errors.Is(err, vendorapi.ErrDone) {
			break
		}
		if err != nil {
			return e.finishErr(ctx, logger, p, effective, err, items, skipped)
		}

		chunk := make([]*mapper.Mapped, 0, len(page))
		for _, rec := range page {
			pk, ok := rec.Int64(tspec.PK)
			if !ok {
				skipped++
				logger.Warn().Str("pk", tspec.PK).Msg("record without primary key skipped")
				continue
			}
			if _, dup := seen[pk]; dup {
				continue
			}
			seen[pk] = struct{}{}

			if espec.detailPath != nil && (espec.detailAlways || (espec.hasDetail != nil && !espec.hasDetail(rec))) {
				detail, err := e.api.Record(ctx, espec.detailPath(pk), nil)
				if err != nil {
					return e.finishErr(ctx, logger, p, effective, err, items, skipped)
				}
				rec = detail
				// Smooth database load between per-parent fetches.
				if err := sleepCtx(ctx, e.cfg.InterParentPause); err != nil {
					return e.finishErr(ctx, logger, p, effective, err, items, skipped)
				}
			}

			m, err := mapper.Map(kind, rec)
			if err != nil {
				var me *mapper.MappingError
				if errors.As(err, &me) {
					skipped++
					logger.Warn().Err(err).Msg("unmappable record skipped")
					continue
				}
				return e.finishErr(ctx, logger, p, effective, err, items, skipped)
			}
			chunk = append(chunk, m)
		}

		// A page may exceed the transaction budget; write it in chunks
		// of at most BatchSize parents.
		for start := 0; start < len(chunk); start += e.cfg.BatchSize {
			end := start + e.cfg.BatchSize
			if end > len(chunk) {
				end = len(chunk)
			}
			if err := e.writer.WriteChunk(ctx, tspec, chunk[start:end]); err != nil {
				return e.finishErr(ctx, logger, p, effective, err, items, skipped)
			}
			items += end - start
			batches++
		}

		offset := pages.Offset()
		if err := e.store.Update(ctx, p, progress.Patch{
			CurrentOffset:  &offset,
			BatchNumber:    &batches,
			ItemsProcessed: &items,
		}); err != nil {
			// Checkpoint write failures degrade resumability, not the
			// sync itself.
			logger.Warn().Err(err).Msg("progress checkpoint failed")
		}
		logger.Info().
			Int("offset", offset).
			Int("batch", batches).
			Int("items", items).
			Str("status", string(progress.StatusInProgress)).
			Msg("batch written")
	}

	return e.finishOK(ctx, logger, p, effective, items, batches, skipped)
}

// acquire resolves the progress record for the requested mode and
// returns the effective mode (retries adopt the recorded one).
func (e *Engine) acquire(ctx context.Context, entity string, mode Mode) (*progress.Progress, Mode, error) {
	if mode.Kind == Retry {
		p, err := e.store.Get(ctx, mode.SyncID)
		if err != nil {
			return nil, mode, err
		}
		if err := e.store.Reactivate(ctx, p); err != nil {
			return nil, mode, err
		}
		return p, DecodeMode(p.Mode), nil
	}

	fresh := mode.Kind == Full || mode.Kind == DaysWindow
	p, err := e.store.Start(ctx, entity, mode.Encode(), fresh)
	if err != nil {
		return nil, mode, err
	}
	return p, mode, nil
}

// window derives the since-filter and cutoff for a mode.
func (e *Engine) window(ctx context.Context, entity, parentTable string, mode Mode) (since, cutoff time.Time) {
	switch mode.Kind {
	case Full:
		return time.Time{}, time.Time{}
	case DaysWindow:
		c := time.Now().UTC().AddDate(0, 0, -mode.Days)
		return c, c
	default:
		last := e.store.LastSyncDate(ctx, entity, parentTable)
		// Rolling window: always reach back far enough to absorb
		// clock skew and late updates.
		return last.Add(-e.cfg.RollingWindow), time.Time{}
	}
}

func (e *Engine) finishOK(ctx context.Context, logger zerolog.Logger, p *progress.Progress, mode Mode, items, batches, skipped int) Result {
	patch := progress.Patch{}
	if p.TotalItems == nil {
		ti := items
		patch.TotalItems = &ti
	}
	if p.TotalBatches == nil {
		tb := batches
		patch.TotalBatches = &tb
	}
	if patch.TotalItems != nil || patch.TotalBatches != nil {
		if err := e.store.Update(ctx, p, patch); err != nil {
			logger.Warn().Err(err).Msg("final progress update failed")
		}
	}

	if err := e.store.Complete(ctx, p, true); err != nil {
		logger.Warn().Err(err).Msg("failed to mark sync completed")
	}
	now := time.Now().UTC()
	if err := e.store.SetLastSync(ctx, p.Entity, now, items); err != nil {
		logger.Warn().Err(err).Msg("failed to record last sync date")
	}

	logger.Info().
		Int("items", items).
		Int("skipped", skipped).
		Str("status", string(progress.StatusCompleted)).
		Msg("sync completed")

	return Result{
		Entity:         p.Entity,
		SyncID:         p.SyncID,
		Mode:           mode.Encode(),
		Success:        true,
		ItemsProcessed: items,
		SkippedRecords: skipped,
	}
}

// finishErr maps the failure taxonomy onto the progress record:
// recoverable failures (transport, cancellation, retryable database
// errors) keep the attempt resumable as error_recoverable; everything
// else completes it as failed.
func (e *Engine) finishErr(ctx context.Context, logger zerolog.Logger, p *progress.Progress, mode Mode, cause error, items, skipped int) Result {
	// Status writes must survive the cancellation that caused them.
	ctx = context.WithoutCancel(ctx)

	if recoverable(cause) {
		st := progress.StatusErrorRecoverable
		if err := e.store.Update(ctx, p, progress.Patch{Status: &st}); err != nil {
			logger.Warn().Err(err).Msg("failed to mark sync recoverable")
		}
		logger.Warn().Err(cause).
			Int("offset", p.CurrentOffset).
			Str("status", string(st)).
			Msg("sync interrupted, resumable")
	} else {
		if err := e.store.Complete(ctx, p, false); err != nil {
			logger.Warn().Err(err).Msg("failed to mark sync failed")
		}
		logger.Error().Err(cause).
			Int("offset", p.CurrentOffset).
			Str("status", string(progress.StatusFailed)).
			Msg("sync failed")
	}

	return Result{
		Entity:         p.Entity,
		SyncID:         p.SyncID,
		Mode:           mode.Encode(),
		Success:        false,
		ItemsProcessed: items,
		SkippedRecords: skipped,
		Error:          cause.Error(),
	}
}

// recoverable decides whether a failure leaves the attempt resumable.
func recoverable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if writer.IsRecoverable(err) {
		return true
	}
	if kind, ok := vendorapi.KindOf(err); ok {
		return kind == vendorapi.KindTransport
	}
	return false
}

// sleepCtx pauses, honoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
