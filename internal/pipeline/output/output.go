// Package output implements the pipeline's sink adapters: console,
// MQTT, and database, plus a typed registry for assembling them from
// a {type, id, config} triple.
package output

import (
	"sync"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
)

// Output is a sink every pipeline fans events out to concurrently.
// Start and Stop must be idempotent.
type Output interface {
	ID() string
	Start() error
	Stop() error
	Send(e event.Event) error
}

// Registry is a thread-safe collection of configured outputs, indexed
// by id, in registration order for deterministic startup/shutdown.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]Output
	ordered []Output
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Output)}
}

func (r *Registry) Add(o Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[o.ID()] = o
	r.ordered = append(r.ordered, o)
}

func (r *Registry) Get(id string) (Output, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	return o, ok
}

// All returns every registered output in registration order.
func (r *Registry) All() []Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Output, len(r.ordered))
	copy(out, r.ordered)
	return out
}
