// Package scheduler runs a panel's periodic action sweep.
//
// Each tick runs the configured steps in order inside the panel's execution
// context. A tick that arrives while a sweep is still running is skipped,
// not queued. A failing or panicking step is logged and recorded in its
// health; the remaining steps and later ticks still run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
)

// Step is one unit of a sweep.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Once returns a step that runs fn the first time ready reports true and is
// a no-op on every tick after that.
func Once(name string, ready func() bool, fn func(ctx context.Context) error) Step {
	done := false
	return Step{Name: name, Run: func(ctx context.Context) error {
		if done || !ready() {
			return nil
		}
		done = true
		return fn(ctx)
	}}
}

type Scheduler struct {
	exec  *coop.Exec
	steps []Step
	log   zerolog.Logger

	running atomic.Bool
	ticks   atomic.Int64
	skipped atomic.Int64

	mu        sync.Mutex
	interval  time.Duration
	threshold int
	reset     chan struct{}

	health map[string]*stepHealth
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithFailureThreshold sets how many consecutive failures mark a step failed.
func WithFailureThreshold(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.threshold = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func New(exec *coop.Exec, steps []Step, opts ...Option) *Scheduler {
	s := &Scheduler{
		exec:      exec,
		steps:     steps,
		log:       zerolog.Nop(),
		interval:  config.DefaultTickInterval,
		threshold: 3,
		reset:     make(chan struct{}, 1),
		health:    make(map[string]*stepHealth, len(steps)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, st := range steps {
		s.health[st.Name] = &stepHealth{}
	}
	return s
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	s.log.Debug().Dur("interval", s.Interval()).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("scheduler stopped")
			return
		case <-s.reset:
			ticker.Reset(s.Interval())
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep. It returns false, doing nothing, when another sweep
// is still in progress.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return false
	}
	defer s.running.Store(false)
	s.ticks.Add(1)

	s.exec.Run(func() {
		for _, st := range s.steps {
			if ctx.Err() != nil {
				return
			}
			s.runStep(ctx, st)
		}
	})
	return true
}

func (s *Scheduler) runStep(ctx context.Context, st Step) {
	h := s.health[st.Name]
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error().Str("step", st.Name).Bytes("stack", debug.Stack()).Msg("step panicked")
			}
		}()
		return st.Run(ctx)
	}()
	if err != nil && !errors.Is(err, context.Canceled) {
		h.recordFailure(err)
		s.log.Error().Err(err).Str("step", st.Name).Msg("step failed")
		return
	}
	h.recordSuccess()
}

// Running reports whether a sweep is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Ticks is the number of sweeps started.
func (s *Scheduler) Ticks() int64 { return s.ticks.Load() }

// Skipped is the number of ticks dropped because a sweep was running.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the tick interval of a running scheduler.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	changed := d != s.interval
	s.interval = d
	s.mu.Unlock()
	if !changed {
		return
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Health returns each step's status, in step order.
func (s *Scheduler) Health() []StepHealth {
	s.mu.Lock()
	threshold := s.threshold
	s.mu.Unlock()
	out := make([]StepHealth, 0, len(s.steps))
	for _, st := range s.steps {
		out = append(out, s.health[st.Name].snapshot(st.Name, threshold))
	}
	return out
}
