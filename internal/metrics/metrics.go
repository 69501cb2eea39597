// Package metrics implements the pipeline's thread-safe in-memory
// metrics registry: counters, gauges, and histograms keyed by name
// plus sorted labels, with Prometheus text and JSON exporters.
package metrics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind identifies a metric's aggregation semantics.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
)

type histogramValue struct {
	sum     float64
	count   uint64
	buckets map[float64]uint64
}

type entry struct {
	kind      Kind
	name      string
	labels    map[string]string
	value     float64
	histogram *histogramValue
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

// Registry is a thread-safe store of named, labeled metrics.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) key(kind Kind, name string, labels map[string]string) string {
	return string(kind) + "|" + name + "|" + labelKey(sanitizeLabels(labels))
}

// Increment adds delta to a counter, creating it at zero if absent.
func (r *Registry) Increment(name string, labels map[string]string, delta float64) {
	labels = sanitizeLabels(labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(KindCounter, name, labels)
	e, ok := r.entries[k]
	if !ok {
		e = &entry{kind: KindCounter, name: name, labels: labels}
		r.entries[k] = e
	}
	e.value += delta
}

// Set assigns a gauge's current value, creating it if absent.
func (r *Registry) Set(name string, labels map[string]string, value float64) {
	labels = sanitizeLabels(labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(KindGauge, name, labels)
	e, ok := r.entries[k]
	if !ok {
		e = &entry{kind: KindGauge, name: name, labels: labels}
		r.entries[k] = e
	}
	e.value = value
}

// Observe records one histogram sample, bucketing it against the
// given upper bounds (each provided bound is inclusive; +Inf is
// always implicit).
func (r *Registry) Observe(name string, labels map[string]string, value float64, buckets []float64) {
	labels = sanitizeLabels(labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(KindHistogram, name, labels)
	e, ok := r.entries[k]
	if !ok {
		e = &entry{kind: KindHistogram, name: name, labels: labels, histogram: &histogramValue{
			buckets: make(map[float64]uint64, len(buckets)),
		}}
		for _, b := range buckets {
			e.histogram.buckets[b] = 0
		}
		r.entries[k] = e
	}
	e.histogram.sum += value
	e.histogram.count++
	for bound := range e.histogram.buckets {
		if value <= bound {
			e.histogram.buckets[bound]++
		}
	}
}

// Collector is a prefix-scoped convenience wrapper around a Registry,
// offering higher-level recording helpers used throughout the
// pipeline's stages.
type Collector struct {
	registry *Registry
	prefix   string
}

// NewCollector scopes every metric name this collector records under
// "<prefix>_".
func NewCollector(registry *Registry, prefix string) *Collector {
	return &Collector{registry: registry, prefix: prefix}
}

func (c *Collector) name(suffix string) string {
	if c.prefix == "" {
		return suffix
	}
	return c.prefix + "_" + suffix
}

// RecordOperation records a success/failure outcome and its duration
// for a named operation.
func (c *Collector) RecordOperation(opName string, success bool, durationMS float64, labels map[string]string) {
	merged := mergeLabels(labels, map[string]string{"operation": opName, "success": fmt.Sprintf("%t", success)})
	c.registry.Increment(c.name("operations_total"), merged, 1)
	c.registry.Observe(c.name("operation_duration_ms"), merged, durationMS,
		[]float64{1, 5, 10, 50, 100, 500, 1000, 5000})
}

// RecordError increments an error counter for a given error type and
// operation.
func (c *Collector) RecordError(errType, op string, labels map[string]string) {
	merged := mergeLabels(labels, map[string]string{"error_type": errType, "operation": op})
	c.registry.Increment(c.name("errors_total"), merged, 1)
}

// UpdateStatus sets a gauge describing a component's current status.
func (c *Collector) UpdateStatus(component string, value float64, labels map[string]string) {
	merged := mergeLabels(labels, map[string]string{"component": component})
	c.registry.Set(c.name("status"), merged, value)
}

// TimingContext measures elapsed time from creation to Stop, then
// records it as an operation.
type TimingContext struct {
	collector *Collector
	opName    string
	labels    map[string]string
	start     time.Time
}

// StartTiming begins a TimingContext for opName.
func (c *Collector) StartTiming(opName string, labels map[string]string) *TimingContext {
	return &TimingContext{collector: c, opName: opName, labels: labels, start: time.Now()}
}

// Stop records the elapsed duration as a completed operation.
func (tc *TimingContext) Stop(success bool) {
	elapsedMS := float64(time.Since(tc.start).Microseconds()) / 1000.0
	tc.collector.RecordOperation(tc.opName, success, elapsedMS, tc.labels)
}

func mergeLabels(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

var labelSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		v = labelSanitizePattern.ReplaceAllString(v, "_")
		if len(v) > 64 {
			v = v[:64]
		}
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time view of one metric, used by exporters.
type Snapshot struct {
	Name      string
	Labels    map[string]string
	Type      Kind
	Value     float64
	Sum       float64
	Count     uint64
	Buckets   map[float64]uint64
	Timestamp time.Time
}

// Snapshot returns every metric currently in the registry, sorted by
// name then label key for deterministic export ordering.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.entries))
	for _, e := range r.entries {
		s := Snapshot{Name: e.name, Labels: e.labels, Type: e.kind, Value: e.value, Timestamp: time.Now()}
		if e.histogram != nil {
			s.Sum = e.histogram.sum
			s.Count = e.histogram.count
			s.Buckets = e.histogram.buckets
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return labelKey(out[i].Labels) < labelKey(out[j].Labels)
	})
	return out
}
