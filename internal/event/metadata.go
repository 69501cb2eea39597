// Package event defines the pipeline's tagged-union event model:
// the metadata envelope every event carries, and the three concrete
// event variants (raw ingest, parsed text product, extracted XML)
// that flow through filters, transformers, and outputs.
package event

import "time"

// Stage identifies which pipeline stage last touched an event.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageFilter    Stage = "filter"
	StageTransform Stage = "transform"
	StageOutput    Stage = "output"
)

// Metadata is the immutable envelope carried by every event. Stages
// never mutate a Metadata in place; they call With* to get a copy
// with one field changed, leaving the original event's metadata (and
// any other holder of it) untouched.
type Metadata struct {
	EventID   string
	Timestamp time.Time
	Source    string
	Stage     Stage
	TraceID   string
	Custom    map[string]string
}

// NewMetadata builds the metadata for a freshly ingested event.
func NewMetadata(eventID, source, traceID string, now time.Time) Metadata {
	return Metadata{
		EventID:   eventID,
		Timestamp: now,
		Source:    source,
		Stage:     StageIngest,
		TraceID:   traceID,
		Custom:    map[string]string{},
	}
}

// WithStage returns a copy of m advanced to the given stage.
func (m Metadata) WithStage(stage Stage) Metadata {
	out := m.clone()
	out.Stage = stage
	return out
}

// WithCustom returns a copy of m with key set to value in the custom
// annotation map. Used by pipeline stages to record things like
// "<stage_id>_duration_ms" without touching the original map.
func (m Metadata) WithCustom(key, value string) Metadata {
	out := m.clone()
	out.Custom[key] = value
	return out
}

func (m Metadata) clone() Metadata {
	custom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		custom[k] = v
	}
	return Metadata{
		EventID:   m.EventID,
		Timestamp: m.Timestamp,
		Source:    m.Source,
		Stage:     m.Stage,
		TraceID:   m.TraceID,
		Custom:    custom,
	}
}
