// Package filter implements the pipeline's should-process gate:
// the duplicate-detection cache and the test-message filter, plus a
// typed registry so a pipeline can be assembled from a
// {type, id, config} triple the way the teacher's plugin registries
// build components from string keys.
package filter

import (
	"strings"
	"sync"
	"time"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// Filter is the interface every built-in and custom filter satisfies.
// ShouldProcess returns false to drop the event; a non-nil error
// means the filter itself failed and the pipeline's error handler for
// this stage-id decides what happens next.
type Filter interface {
	ID() string
	ShouldProcess(e event.Event) (bool, error)
}

// TestMessageFilter drops events whose awipsid is exactly "TSTMSG",
// case-insensitively. Events without an awipsid pass.
type TestMessageFilter struct {
	id string
}

func NewTestMessageFilter(id string) *TestMessageFilter {
	if id == "" {
		id = "test_message"
	}
	return &TestMessageFilter{id: id}
}

func (f *TestMessageFilter) ID() string { return f.id }

func (f *TestMessageFilter) ShouldProcess(e event.Event) (bool, error) {
	awipsID, ok := awipsIDOf(e)
	if !ok {
		return true, nil
	}
	return strings.ToUpper(awipsID) != "TSTMSG", nil
}

func awipsIDOf(e event.Event) (string, bool) {
	switch v := e.(type) {
	case event.RawIngestEvent:
		return v.AwipsID, true
	case event.TextProductEvent:
		return v.AwipsID, true
	case event.XmlEvent:
		return v.AwipsID, true
	default:
		return "", false
	}
}

func productIDOf(e event.Event) (string, bool) {
	switch v := e.(type) {
	case event.RawIngestEvent:
		return v.ProductID, v.ProductID != ""
	case event.TextProductEvent:
		return v.ProductID, v.ProductID != ""
	case event.XmlEvent:
		return v.ProductID, v.ProductID != ""
	default:
		return "", false
	}
}

// DuplicateFilter is a process-global, time-windowed set of recently
// seen product ids. Entries older than Window are purged at the start
// of every call, before the membership check, matching the original
// dedup filter's purge-then-check ordering.
type DuplicateFilter struct {
	id     string
	window time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time
	nowFunc func() time.Time
}

func NewDuplicateFilter(id string, window time.Duration) *DuplicateFilter {
	if id == "" {
		id = "duplicate"
	}
	if window <= 0 {
		window = 300 * time.Second
	}
	return &DuplicateFilter{
		id:      id,
		window:  window,
		seen:    make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (f *DuplicateFilter) ID() string { return f.id }

func (f *DuplicateFilter) ShouldProcess(e event.Event) (bool, error) {
	productID, ok := productIDOf(e)
	if !ok {
		logger.Warnw("duplicate filter: event missing product_id, passing through", "event_id", e.Meta().EventID)
		return true, nil
	}

	now := f.nowFunc()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.purgeExpired(now)

	if _, exists := f.seen[productID]; exists {
		return false, nil
	}
	f.seen[productID] = now
	return true, nil
}

// purgeExpired must be called with f.mu held.
func (f *DuplicateFilter) purgeExpired(now time.Time) {
	for id, seenAt := range f.seen {
		if now.Sub(seenAt) >= f.window {
			delete(f.seen, id)
		}
	}
}

// Size returns the number of product ids currently tracked.
func (f *DuplicateFilter) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// OldestAge returns how long the oldest tracked entry has been in the
// cache, or zero if the cache is empty.
func (f *DuplicateFilter) OldestAge() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seen) == 0 {
		return 0
	}
	now := f.nowFunc()
	var oldest time.Time
	for _, seenAt := range f.seen {
		if oldest.IsZero() || seenAt.Before(oldest) {
			oldest = seenAt
		}
	}
	return now.Sub(oldest)
}

// Factory builds a configured Filter from a type name, id, and string
// config map, the same {type, id, config} shape the registry-driven
// parts of the teacher's plugin system use.
type Factory func(id string, config map[string]string) (Filter, error)

// Registry is a thread-safe map of filter-type name to Factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("test_message", func(id string, _ map[string]string) (Filter, error) {
		return NewTestMessageFilter(id), nil
	})
	r.Register("duplicate", func(id string, config map[string]string) (Filter, error) {
		window := 300 * time.Second
		if raw, ok := config["window_seconds"]; ok {
			if d, err := time.ParseDuration(raw + "s"); err == nil {
				window = d
			}
		}
		return NewDuplicateFilter(id, window), nil
	})
	return r
}

func (r *Registry) Register(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

func (r *Registry) Build(typeName, id string, config map[string]string) (Filter, bool, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	f, err := factory(id, config)
	return f, true, err
}
