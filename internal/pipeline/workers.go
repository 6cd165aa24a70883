// Package pipeline drives the nightly run: six sequential phases over a
// bounded worker pool, with durable per-phase progress in the update log.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// stallThreshold bounds how long a single ticker may sit in rate-limiter
// or network waits before the phase gives up on it and winds down.
const stallThreshold = 5 * time.Minute

// poolOutcome collects per-ticker results from one phase's pool.
type poolOutcome struct {
	mu        sync.Mutex
	Processed []string
	Deferred  []string
	Failed    map[string]error
}

func (o *poolOutcome) ok(ticker string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Processed = append(o.Processed, ticker)
}

func (o *poolOutcome) deferTicker(ticker string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Deferred = append(o.Deferred, ticker)
}

func (o *poolOutcome) fail(ticker string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Failed == nil {
		o.Failed = map[string]error{}
	}
	o.Failed[ticker] = err
}

// FirstError returns one representative failure for log rows.
func (o *poolOutcome) FirstError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.Failed))
	for k := range o.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil
	}
	return o.Failed[keys[0]]
}

// runPool fans tickers out over a bounded worker pool. Each task runs
// under a stall timeout; a task that times out while the run itself is
// still alive marks its ticker deferred and stops the pool from taking new
// work. Already-running workers drain gracefully. Tickers never scheduled
// are recorded as deferred so a later phase or run can pick them up.
func runPool(ctx context.Context, workers int, tickers []string, stall time.Duration, fn func(ctx context.Context, ticker string) error) *poolOutcome {
	if workers < 1 {
		workers = 1
	}
	if stall <= 0 {
		stall = stallThreshold
	}

	out := &poolOutcome{}
	var winddown atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, ticker := range tickers {
		if winddown.Load() || ctx.Err() != nil {
			out.deferTicker(ticker)
			continue
		}
		ticker := ticker
		g.Go(func() error {
			// Re-check after the slot wait: winddown may have been raised
			// while this task sat queued behind the limit.
			if winddown.Load() || ctx.Err() != nil {
				out.deferTicker(ticker)
				return nil
			}

			taskCtx, cancel := context.WithTimeout(ctx, stall)
			defer cancel()

			err := fn(taskCtx, ticker)
			switch {
			case err == nil:
				out.ok(ticker)
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				// The task stalled but the run deadline has not passed:
				// the provider stack is blocked, so stop feeding it.
				out.deferTicker(ticker)
				winddown.Store(true)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				out.deferTicker(ticker)
			default:
				out.fail(ticker, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return out
}
