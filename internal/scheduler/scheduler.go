// Package scheduler dispatches per-entity sync jobs: at most one job
// per entity kind at a time, any number of distinct entities
// concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fulfillsync/mirror/internal/engine"
	"github.com/fulfillsync/mirror/internal/mapper"
	"github.com/fulfillsync/mirror/internal/progress"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned when a sync for the entity is in
// flight.
var ErrAlreadyRunning = errors.New("scheduler: sync already running for entity")

// Runner executes one sync; satisfied by *engine.Engine.
type Runner interface {
	Sync(ctx context.Context, kind mapper.Kind, mode engine.Mode) engine.Result
}

// Scheduler serializes jobs per entity kind and fans out sync-all.
type Scheduler struct {
	runner Runner

	// base is the lifetime context for asynchronously started jobs;
	// cancelling it (shutdown) aborts every running sync.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[mapper.Kind]struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler whose jobs live under parent.
func New(parent context.Context, runner Runner) *Scheduler {
	base, cancel := context.WithCancel(parent)
	return &Scheduler{
		runner:  runner,
		base:    base,
		cancel:  cancel,
		running: make(map[mapper.Kind]struct{}),
	}
}

// Sync runs one job synchronously. Returns ErrAlreadyRunning without
// starting anything when the entity is busy.
func (s *Scheduler) Sync(ctx context.Context, kind mapper.Kind, mode engine.Mode) (engine.Result, error) {
	release, err := s.claim(kind)
	if err != nil {
		return engine.Result{}, err
	}
	defer release()

	jobCtx, stop := mergedContext(s.base, ctx)
	defer stop()
	return s.runner.Sync(jobCtx, kind, mode), nil
}

// Start launches a job in the background; the result arrives on the
// returned channel. The job outlives the caller's request context and
// stops on scheduler shutdown.
func (s *Scheduler) Start(kind mapper.Kind, mode engine.Mode) (<-chan engine.Result, error) {
	release, err := s.claim(kind)
	if err != nil {
		return nil, err
	}

	out := make(chan engine.Result, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		out <- s.runner.Sync(s.base, kind, mode)
	}()
	return out, nil
}

// SyncAll dispatches one job per entity kind concurrently and joins
// the results. Individual failures do not fail the aggregate; busy
// entities are reported as such.
func (s *Scheduler) SyncAll(ctx context.Context, full bool) []engine.Result {
	mode := engine.Mode{Kind: engine.Incremental}
	if full {
		mode = engine.Mode{Kind: engine.Full}
	}

	kinds := mapper.AllKinds()
	results := make([]engine.Result, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			res, err := s.Sync(gctx, kind, mode)
			if err != nil {
				res = engine.Result{Entity: string(kind), Mode: mode.Encode(), Error: err.Error()}
			}
			results[i] = res
			// Aggregate never fails on individual entities.
			return nil
		})
	}
	g.Wait()

	log.Info().Bool("full", full).Int("entities", len(kinds)).Msg("sync all finished")
	return results
}

// Retry re-runs a failed or interrupted attempt. The entity kind is
// parsed from the sync id prefix; the engine resumes from the stored
// offset under the recorded mode.
func (s *Scheduler) Retry(ctx context.Context, syncID string) (engine.Result, error) {
	entity, ok := progress.EntityFromSyncID(syncID)
	if !ok {
		return engine.Result{}, fmt.Errorf("scheduler: malformed sync id %q", syncID)
	}
	kind, ok := mapper.ParseKind(entity)
	if !ok {
		return engine.Result{}, fmt.Errorf("scheduler: unknown entity in sync id %q", syncID)
	}
	return s.Sync(ctx, kind, engine.Mode{Kind: engine.Retry, SyncID: syncID})
}

// Running lists the entities with a job in flight.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for k := range s.running {
		names = append(names, string(k))
	}
	return names
}

// Shutdown cancels every running job and waits for them to unwind.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// claim takes the per-entity slot.
func (s *Scheduler) claim(kind mapper.Kind) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[kind]; busy {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, kind)
	}
	s.running[kind] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.running, kind)
		s.mu.Unlock()
	}, nil
}

// mergedContext cancels when either parent does.
func mergedContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stopWatch := context.AfterFunc(b, cancel)
	return ctx, func() {
		stopWatch()
		cancel()
	}
}
