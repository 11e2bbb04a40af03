package bridge

import (
	"slices"
	"sync"
)

// Registry maps catalog methods to handlers. Registering a method twice
// replaces the earlier handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Method]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Method]Handler)}
}

// Register adds bindings in order; later ones win.
func (r *Registry) Register(bindings ...Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bindings {
		if b.handler == nil {
			continue
		}
		r.handlers[b.method] = b.handler
	}
}

func (r *Registry) Lookup(m Method) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[m]
	return h, ok
}

// Methods lists the registered methods, sorted.
func (r *Registry) Methods() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Method, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}
