package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// defaultLookback is the last-sync fallback when neither SyncStatus
// nor the parent table yields a date.
const defaultLookback = 30 * 24 * time.Hour

// ErrNotFound is returned when a sync id has no progress row.
var ErrNotFound = errors.New("progress: sync not found")

// Store persists progress records. All operations are best-effort
// durable: if the database is unreachable, Start degrades to an
// in-memory sentinel so the engine can still run.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const progressColumns = `sync_id, entity_type, mode, current_offset, batch_number, items_processed,
	total_items, total_batches, status, started_at, last_updated, completed_at`

func scanProgress(row pgx.Row) (*Progress, error) {
	var p Progress
	var mode *string
	var status string
	err := row.Scan(&p.SyncID, &p.Entity, &mode, &p.CurrentOffset, &p.BatchNumber, &p.ItemsProcessed,
		&p.TotalItems, &p.TotalBatches, &status, &p.StartedAt, &p.LastUpdated, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	if mode != nil {
		p.Mode = *mode
	}
	p.Status = Status(status)
	return &p, nil
}

// Start acquires a progress record for a new sync attempt.
//
// fresh (full and days-window syncs): any in_progress row for the
// entity is marked abandoned first, keeping the at-most-one
// invariant, then a zeroed record is created.
//
// !fresh (incremental): an existing in_progress row is adopted so the
// engine resumes from its offset; otherwise a zeroed record is
// created.
func (s *Store) Start(ctx context.Context, entity, mode string, fresh bool) (*Progress, error) {
	if !fresh {
		row := s.pool.QueryRow(ctx, fmt.Sprintf(
			`SELECT %s FROM "SyncProgress"
			 WHERE entity_type = $1 AND status = $2
			 ORDER BY started_at DESC LIMIT 1`, progressColumns),
			entity, string(StatusInProgress))
		p, err := scanProgress(row)
		if err == nil {
			log.Info().Str("entity", entity).Str("syncId", p.SyncID).
				Int("offset", p.CurrentOffset).Msg("resuming in-progress sync")
			return p, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return s.sentinel(entity, mode, err), nil
		}
	} else {
		// Supersede any stale attempt before starting over.
		if _, err := s.pool.Exec(ctx,
			`UPDATE "SyncProgress" SET status = $1, last_updated = $2
			 WHERE entity_type = $3 AND status = $4`,
			string(StatusAbandoned), time.Now().UTC(), entity, string(StatusInProgress)); err != nil {
			return s.sentinel(entity, mode, err), nil
		}
	}

	now := time.Now().UTC()
	p := &Progress{
		SyncID:      NewSyncID(entity),
		Entity:      entity,
		Mode:        mode,
		Status:      StatusInProgress,
		StartedAt:   now,
		LastUpdated: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO "SyncProgress" (sync_id, entity_type, mode, current_offset, batch_number,
			items_processed, status, started_at, last_updated)
		 VALUES ($1, $2, $3, 0, 0, 0, $4, $5, $5)`,
		p.SyncID, entity, mode, string(StatusInProgress), now)
	if err != nil {
		return s.sentinel(entity, mode, err), nil
	}
	return p, nil
}

// sentinel builds the degraded in-memory progress.
func (s *Store) sentinel(entity, mode string, cause error) *Progress {
	log.Warn().Err(cause).Str("entity", entity).
		Msg("progress store unreachable, continuing with in-memory progress")
	now := time.Now().UTC()
	return &Progress{
		SyncID:      NewSyncID(entity),
		Entity:      entity,
		Mode:        mode,
		Status:      StatusInProgress,
		StartedAt:   now,
		LastUpdated: now,
		Transient:   true,
	}
}

// Get loads a progress row by sync id.
func (s *Store) Get(ctx context.Context, syncID string) (*Progress, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM "SyncProgress" WHERE sync_id = $1`, progressColumns), syncID)
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// Latest returns the most recent progress row for an entity, or nil.
func (s *Store) Latest(ctx context.Context, entity string) (*Progress, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM "SyncProgress" WHERE entity_type = $1
		 ORDER BY started_at DESC LIMIT 1`, progressColumns), entity)
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Reactivate re-marks a failed or recoverable attempt as in_progress
// with a fresh last_updated, for operator-initiated retries.
func (s *Store) Reactivate(ctx context.Context, p *Progress) error {
	now := time.Now().UTC()
	p.Status = StatusInProgress
	p.LastUpdated = now
	p.CompletedAt = nil
	if p.Transient {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE "SyncProgress" SET status = $1, last_updated = $2, completed_at = NULL
		 WHERE entity_type = $3 AND sync_id = $4`,
		string(StatusInProgress), now, p.Entity, p.SyncID)
	return err
}

// Update applies a partial update atomically and refreshes
// last_updated. The in-memory struct is always patched, so the engine
// keeps a consistent view even in degraded mode.
func (s *Store) Update(ctx context.Context, p *Progress, patch Patch) error {
	now := time.Now().UTC()

	sets := []string{"last_updated = $1"}
	args := []any{now}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.CurrentOffset != nil {
		p.CurrentOffset = *patch.CurrentOffset
		add("current_offset", *patch.CurrentOffset)
	}
	if patch.BatchNumber != nil {
		p.BatchNumber = *patch.BatchNumber
		add("batch_number", *patch.BatchNumber)
	}
	if patch.ItemsProcessed != nil {
		p.ItemsProcessed = *patch.ItemsProcessed
		add("items_processed", *patch.ItemsProcessed)
	}
	if patch.TotalItems != nil {
		p.TotalItems = patch.TotalItems
		add("total_items", *patch.TotalItems)
	}
	if patch.TotalBatches != nil {
		p.TotalBatches = patch.TotalBatches
		add("total_batches", *patch.TotalBatches)
	}
	if patch.Status != nil {
		p.Status = *patch.Status
		add("status", string(*patch.Status))
	}
	p.LastUpdated = now

	if p.Transient {
		log.Debug().Str("syncId", p.SyncID).Msg("degraded mode, progress update kept in memory")
		return nil
	}

	args = append(args, p.Entity, p.SyncID)
	sql := fmt.Sprintf(`UPDATE "SyncProgress" SET %s WHERE entity_type = $%d AND sync_id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	_, err := s.pool.Exec(ctx, sql, args...)
	return err
}

// Complete finalizes the attempt: completed or failed, with
// completed_at = last_updated. The record is immutable afterwards.
func (s *Store) Complete(ctx context.Context, p *Progress, success bool) error {
	now := time.Now().UTC()
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	p.Status = status
	p.LastUpdated = now
	p.CompletedAt = &now

	if p.Transient {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE "SyncProgress" SET status = $1, last_updated = $2, completed_at = $2
		 WHERE entity_type = $3 AND sync_id = $4`,
		string(status), now, p.Entity, p.SyncID)
	return err
}

// LastSyncDate resolves the incremental cursor for an entity: the
// SyncStatus row, else max(last_sync_date) of the parent table, else
// 30 days ago.
func (s *Store) LastSyncDate(ctx context.Context, entity, parentTable string) time.Time {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_sync_date FROM "SyncStatus" WHERE entity_type = $1`, entity).Scan(&last)
	if err == nil && last != nil {
		return last.UTC()
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Warn().Err(err).Str("entity", entity).Msg("failed to read sync status")
	}

	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT max(last_sync_date) FROM %q`, parentTable)).Scan(&last)
	if err == nil && last != nil {
		return last.UTC()
	}

	return time.Now().UTC().Add(-defaultLookback)
}

// SetLastSync upserts the per-entity SyncStatus row after a
// successful sync.
func (s *Store) SetLastSync(ctx context.Context, entity string, at time.Time, count int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO "SyncStatus" (entity_name, entity_type, last_sync_date, last_sync_count, total_count)
		 VALUES ($1, $1, $2, $3, $3)
		 ON CONFLICT (entity_type) DO UPDATE SET
			last_sync_date = EXCLUDED.last_sync_date,
			last_sync_count = EXCLUDED.last_sync_count,
			total_count = EXCLUDED.total_count`,
		entity, at.UTC(), count)
	return err
}

// LastSync reads the SyncStatus row; nil when the entity never
// completed a sync.
func (s *Store) LastSync(ctx context.Context, entity string) (*time.Time, int, error) {
	var last *time.Time
	var count *int
	err := s.pool.QueryRow(ctx,
		`SELECT last_sync_date, last_sync_count FROM "SyncStatus" WHERE entity_type = $1`,
		entity).Scan(&last, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	n := 0
	if count != nil {
		n = *count
	}
	return last, n, nil
}

// Count returns the parent table's row count.
func (s *Store) Count(ctx context.Context, parentTable string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %q`, parentTable)).Scan(&n)
	return n, err
}
