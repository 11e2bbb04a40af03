// Package fetch runs bounded, id-keyed fan-outs and tracks per-task progress.
package fetch

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Options controls a Map call.
type Options[T any] struct {
	// Key identifies an item in the result map. Required.
	Key func(T) string
	// Valid, if set, filters items before they take a slot.
	Valid func(T) bool
}

// Result is the outcome of one item.
type Result[R any] struct {
	Value R
	Err   error
}

// MaxLimit is the highest limit a Limiter accepts.
const MaxLimit = 64

// Limiter caps how many fetches run at once across every Map call that
// shares it. The slots live in a weighted semaphore sized MaxLimit; the
// part above the current limit is held by the limiter itself.
type Limiter struct {
	sem *semaphore.Weighted

	mu    sync.Mutex // guards limit, serializes SetLimit
	limit int

	active atomic.Int64
	peak   atomic.Int64
}

func NewLimiter(limit int) *Limiter {
	l := &Limiter{sem: semaphore.NewWeighted(MaxLimit), limit: MaxLimit}
	l.SetLimit(limit)
	return l
}

// SetLimit changes the limit for running and future Map calls. Values are
// clamped to [1, MaxLimit]. Shrinking waits until enough running fetches
// have finished to honor the new limit.
func (l *Limiter) SetLimit(n int) {
	n = max(1, min(n, MaxLimit))
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case n > l.limit:
		l.sem.Release(int64(n - l.limit))
	case n < l.limit:
		// Background never fails Acquire.
		_ = l.sem.Acquire(context.Background(), int64(l.limit-n))
	}
	l.limit = n
}

func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Active is the number of fetches running right now.
func (l *Limiter) Active() int { return int(l.active.Load()) }

// Peak is the highest Active value seen.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }

func (l *Limiter) enter(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := l.active.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			return nil
		}
	}
}

func (l *Limiter) leave() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Map runs fn over the valid items, each holding one of l's slots while
// it runs, and returns the outcomes keyed by opts.Key. One item failing
// does not stop the others. Items not started before ctx is done are
// reported with ctx.Err().
func Map[T, R any](ctx context.Context, l *Limiter, items []T, opts Options[T], fn func(context.Context, T) (R, error)) map[string]Result[R] {
	results := make(map[string]Result[R], len(items))
	var mu sync.Mutex
	store := func(key string, r Result[R]) {
		mu.Lock()
		results[key] = r
		mu.Unlock()
	}

	var g errgroup.Group
	for _, item := range items {
		if opts.Valid != nil && !opts.Valid(item) {
			continue
		}
		key := opts.Key(item)
		if err := ctx.Err(); err != nil {
			store(key, Result[R]{Err: err})
			continue
		}
		g.Go(func() error {
			if err := l.enter(ctx); err != nil {
				store(key, Result[R]{Err: err})
				return nil
			}
			defer l.leave()
			v, err := fn(ctx, item)
			store(key, Result[R]{Value: v, Err: err})
			return nil
		})
	}
	_ = g.Wait()
	return results
}
