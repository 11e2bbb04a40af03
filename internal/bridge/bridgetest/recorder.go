// Package bridgetest provides in-memory stand-ins for the bridge used by
// component tests.
package bridgetest

import (
	"context"
	"sync"
	"time"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
)

// Recorder is a bridge.Dispatcher that keeps every event in order.
type Recorder struct {
	mu     sync.Mutex
	events []bridge.Event
	err    error
	failOn map[string]error
}

var _ bridge.Dispatcher = (*Recorder)(nil)

func (r *Recorder) DispatchEvent(_ context.Context, name string, detail any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if err := r.failOn[name]; err != nil {
		return err
	}
	r.events = append(r.events, bridge.Event{Name: name, Detail: detail})
	return nil
}

// FailWith makes subsequent dispatches return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// FailNamed makes dispatches of the event called name return err. Other
// events are still recorded.
func (r *Recorder) FailNamed(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == nil {
		r.failOn = make(map[string]error)
	}
	r.failOn[name] = err
}

func (r *Recorder) Events() []bridge.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bridge.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Named returns the events called name, in order.
func (r *Recorder) Named(name string) []bridge.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bridge.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor polls until at least n events called name were recorded.
func (r *Recorder) WaitFor(name string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.Named(name)) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return len(r.Named(name)) >= n
}

// Transport is a bridge.Transport that keeps sent frames. Block makes
// Send wait for the context to expire.
type Transport struct {
	mu     sync.Mutex
	frames [][]byte
	block  bool
}

var _ bridge.Transport = (*Transport)(nil)

func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	block := t.block
	t.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, append([]byte(nil), frame...))
	return nil
}

func (t *Transport) Block(b bool) {
	t.mu.Lock()
	t.block = b
	t.mu.Unlock()
}

func (t *Transport) Frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.frames))
	copy(out, t.frames)
	return out
}
