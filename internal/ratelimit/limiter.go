package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("ratelimit: limiter closed")

// RateLimitedError is implemented by errors that represent an
// upstream "rate limit exceeded" response. The limiter retries those
// after a cool-down; everything else propagates immediately.
type RateLimitedError interface {
	error
	RateLimited() bool
}

// Stats are observability counters; they are not part of the
// limiter's correctness contract.
type Stats struct {
	Total         uint64 `json:"total"`
	Successful    uint64 `json:"successful"`
	Failed        uint64 `json:"failed"`
	Retries       uint64 `json:"retries"`
	RateLimitHits uint64 `json:"rateLimitHits"`
}

type job struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Limiter serializes outbound requests through a single-consumer
// queue. Submissions are served FIFO; consecutive operations start at
// least 60s/R apart; an operation failing with a rate-limited error
// is re-executed in place after a cool-down, up to maxRetries times,
// without letting newer submissions jump the queue.
type Limiter struct {
	jobs       chan *job
	spacing    *rate.Limiter
	coolDown   time.Duration
	maxRetries int

	total, successful, failed, retries, hits atomic.Uint64

	closed chan struct{}
}

// New starts a limiter admitting requestsPerMinute operations per
// minute, sleeping coolDown between retries of rate-limited calls.
func New(requestsPerMinute int, coolDown time.Duration, maxRetries int) *Limiter {
	l := &Limiter{
		jobs:       make(chan *job),
		spacing:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		coolDown:   coolDown,
		maxRetries: maxRetries,
		closed:     make(chan struct{}),
	}
	go l.consume()
	return l
}

// Execute runs fn under the limiter and returns its result. Blocks
// until the operation (including retries) finishes, the context is
// cancelled, or the limiter is closed.
func (l *Limiter) Execute(ctx context.Context, fn func(context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return ErrClosed
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		// The consumer observes the same context and abandons the
		// job; the buffered result channel never blocks it.
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (l *Limiter) Stats() Stats {
	return Stats{
		Total:         l.total.Load(),
		Successful:    l.successful.Load(),
		Failed:        l.failed.Load(),
		Retries:       l.retries.Load(),
		RateLimitHits: l.hits.Load(),
	}
}

// Close stops accepting work. In-flight operations finish.
func (l *Limiter) Close() {
	close(l.closed)
}

func (l *Limiter) consume() {
	for {
		select {
		case j := <-l.jobs:
			j.result <- l.serve(j)
		case <-l.closed:
			return
		}
	}
}

// serve runs one job to completion, holding the queue slot across
// retries so later submissions cannot overtake a retry.
func (l *Limiter) serve(j *job) error {
	l.total.Add(1)

	if err := j.ctx.Err(); err != nil {
		l.failed.Add(1)
		return err
	}

	attempts := 0
	op := func() error {
		if err := l.spacing.Wait(j.ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := j.fn(j.ctx)
		if err == nil {
			return nil
		}

		var rl RateLimitedError
		if errors.As(err, &rl) && rl.RateLimited() {
			l.hits.Add(1)
			if attempts >= l.maxRetries {
				return backoff.Permanent(fmt.Errorf("rate limit retries exhausted after %d attempts: %w", attempts, err))
			}
			attempts++
			l.retries.Add(1)
			log.Warn().
				Int("attempt", attempts).
				Dur("coolDown", l.coolDown).
				Msg("upstream rate limit hit, backing off")
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(l.coolDown), j.ctx)
	err := backoff.Retry(op, b)
	if err != nil {
		l.failed.Add(1)
		return err
	}
	l.successful.Add(1)
	return nil
}
