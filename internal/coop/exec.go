// Package coop provides a cooperative execution context.
//
// A panel's handlers, scheduler steps and fetch completions all run while
// holding the panel's Exec, so between suspension points they never
// interleave. A suspension point (network call, timed delay) is wrapped in
// Await, which lets other work in while the caller is blocked.
package coop

import "sync"

// Exec is a cooperative execution context. The zero value is ready to use.
type Exec struct {
	mu sync.Mutex
}

// Run executes fn holding the context.
func (e *Exec) Run(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Await releases the context for the duration of fn. It must only be called
// from inside Run.
func (e *Exec) Await(fn func() error) error {
	e.mu.Unlock()
	defer e.mu.Lock()
	return fn()
}

// Go starts fn on its own goroutine outside the context and runs done
// inside the context once fn returns. wg, if non-nil, tracks the pair.
func Go[T any](e *Exec, wg *sync.WaitGroup, fn func() (T, error), done func(T, error)) {
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		v, err := fn()
		e.Run(func() { done(v, err) })
	}()
}
