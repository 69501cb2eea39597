// Package pipeline orchestrates the filter, transform, and output
// stages a received event passes through: apply filters in order,
// optionally transform, then fan out to every configured output
// concurrently, collecting stats and routing errors through a
// per-stage error handler.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/errhandler"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/filter"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/output"
	"github.com/nwws-bridge/nwws-bridge/internal/pipeline/transform"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// Pipeline owns an ordered list of filters, zero or one transformer,
// a set of outputs, a stats collector, and a per-stage error handler.
type Pipeline struct {
	Filters     []filter.Filter
	Transformer transform.Transformer
	Outputs     *output.Registry
	Metrics     *metrics.Collector

	handlers   map[string]*errhandler.Handler
	handlersMu sync.Mutex
	defaultH   func(stage string) *errhandler.Handler
}

// New builds a Pipeline. defaultHandler, if non-nil, supplies the
// errhandler.Handler to use for a given stage name ("filter",
// "transform", "output") when one hasn't been registered explicitly
// via WithHandler. A nil defaultHandler falls back to FAIL_FAST
// everywhere.
func New(filters []filter.Filter, transformer transform.Transformer, outputs *output.Registry, collector *metrics.Collector, defaultHandler func(stage string) *errhandler.Handler) *Pipeline {
	if defaultHandler == nil {
		defaultHandler = func(string) *errhandler.Handler {
			return errhandler.New(errhandler.FailFast, errhandler.RetryPolicy{}, errhandler.CircuitPolicy{})
		}
	}
	return &Pipeline{
		Filters:     filters,
		Transformer: transformer,
		Outputs:     outputs,
		Metrics:     collector,
		handlers:    make(map[string]*errhandler.Handler),
		defaultH:    defaultHandler,
	}
}

// WithHandler registers the error handler for one specific stage-id
// ("filter.duplicate", "output.mqtt", ...).
func (p *Pipeline) WithHandler(stageID string, h *errhandler.Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[stageID] = h
}

func (p *Pipeline) handlerFor(stage, stageID string) *errhandler.Handler {
	key := stage + "." + stageID
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	if h, ok := p.handlers[key]; ok {
		return h
	}
	h := p.defaultH(stage)
	p.handlers[key] = h
	return h
}

// Start starts every output sequentially. Failure of any aborts
// startup; outputs already started remain started and must be
// explicitly stopped by the caller.
func (p *Pipeline) Start() error {
	for _, o := range p.Outputs.All() {
		if err := o.Start(); err != nil {
			return fmt.Errorf("start output %s: %w", o.ID(), err)
		}
	}
	return nil
}

// Stop stops every output sequentially, logging but never
// propagating stop errors.
func (p *Pipeline) Stop() {
	for _, o := range p.Outputs.All() {
		if err := o.Stop(); err != nil {
			logger.Warnw("output stop failed", "output", o.ID(), "error", err)
		}
	}
}

// Process runs one event through filter, transform, and output
// stages. It returns true if the event was delivered to all outputs,
// false if a filter dropped it. A returned error means a filter, the
// transformer, or at least one output failed; the first such error is
// returned, and every error encountered is logged.
func (p *Pipeline) Process(e event.Event) (bool, error) {
	e = e.WithMeta(e.Meta().WithStage(event.StageFilter))

	for _, f := range p.Filters {
		start := time.Now()
		decision, err := p.runFilter(f, e)
		elapsedMS := time.Since(start).Seconds() * 1000
		e = e.WithMeta(e.Meta().WithCustom(f.ID()+"_duration_ms", formatMS(elapsedMS)))
		p.recordStageDuration("filter", f.ID(), start)
		if err != nil {
			return false, err
		}
		if !decision {
			e = e.WithMeta(e.Meta().WithCustom(f.ID()+"_decision", "filtered"))
			if p.Metrics != nil {
				p.Metrics.RecordOperation("filter_drop", true, 0, map[string]string{"filter": f.ID()})
			}
			return false, nil
		}
		e = e.WithMeta(e.Meta().WithCustom(f.ID()+"_decision", "passed"))
	}

	if p.Transformer != nil {
		e = e.WithMeta(e.Meta().WithStage(event.StageTransform))
		start := time.Now()
		transformed, err := p.runTransform(e)
		elapsedMS := time.Since(start).Seconds() * 1000
		p.recordStageDuration("transform", p.Transformer.ID(), start)
		if err != nil {
			return false, err
		}
		e = transformed.WithMeta(transformed.Meta().WithCustom(p.Transformer.ID()+"_duration_ms", formatMS(elapsedMS)))
	}

	e = e.WithMeta(e.Meta().WithStage(event.StageOutput))
	return p.dispatchOutputs(e)
}

func (p *Pipeline) runFilter(f filter.Filter, e event.Event) (bool, error) {
	h := p.handlerFor("filter", f.ID())
	if admitErr := h.Admit("filter", f.ID()); admitErr != nil {
		return false, admitErr
	}

	pass, err := f.ShouldProcess(e)
	outcome := h.Outcome("filter", f.ID(), 0, err)
	for attempt := 1; err != nil && outcome.Retry; attempt++ {
		time.Sleep(outcome.RetryWait)
		pass, err = f.ShouldProcess(e)
		outcome = h.Outcome("filter", f.ID(), attempt, err)
	}
	if err != nil {
		wrapped := fmt.Errorf("filter %s: %w", f.ID(), err)
		if !outcome.Propagate {
			logger.Warnw("filter error swallowed", "filter", f.ID(), "error", err)
			return true, nil
		}
		return false, wrapped
	}
	return pass, nil
}

func (p *Pipeline) runTransform(e event.Event) (event.Event, error) {
	h := p.handlerFor("transform", p.Transformer.ID())
	if admitErr := h.Admit("transform", p.Transformer.ID()); admitErr != nil {
		return e, admitErr
	}
	result := p.Transformer.Transform(e)
	h.Outcome("transform", p.Transformer.ID(), 0, nil)
	return result, nil
}

type outputResult struct {
	id  string
	err error
}

func (p *Pipeline) dispatchOutputs(e event.Event) (bool, error) {
	outputs := p.Outputs.All()
	if len(outputs) == 0 {
		return true, nil
	}

	results := make(chan outputResult, len(outputs))
	var wg sync.WaitGroup
	wg.Add(len(outputs))

	for _, o := range outputs {
		go func(o output.Output) {
			defer wg.Done()
			start := time.Now()
			h := p.handlerFor("output", o.ID())

			var sendErr error
			if admitErr := h.Admit("output", o.ID()); admitErr != nil {
				sendErr = admitErr
			} else {
				sendErr = o.Send(e)
				decision := h.Outcome("output", o.ID(), 0, sendErr)
				for attempt := 1; decision.Retry; attempt++ {
					time.Sleep(decision.RetryWait)
					sendErr = o.Send(e)
					decision = h.Outcome("output", o.ID(), attempt, sendErr)
				}
				if sendErr != nil && !decision.Propagate {
					logger.Warnw("output error swallowed", "output", o.ID(), "error", sendErr)
					sendErr = nil
				}
			}

			p.recordStageDuration("output", o.ID(), start)
			results <- outputResult{id: o.ID(), err: sendErr}
		}(o)
	}

	wg.Wait()
	close(results)

	var first error
	for r := range results {
		if r.err != nil {
			logger.Warnw("output failed", "output", r.id, "error", r.err)
			if p.Metrics != nil {
				p.Metrics.RecordError("output_failure", r.id, nil)
			}
			if first == nil {
				first = fmt.Errorf("output %s: %w", r.id, r.err)
			}
		}
	}

	return first == nil, first
}

func formatMS(ms float64) string {
	return fmt.Sprintf("%.3f", ms)
}

func (p *Pipeline) recordStageDuration(stage, stageID string, start time.Time) {
	if p.Metrics == nil {
		return
	}
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0
	p.Metrics.RecordOperation(stage+"_"+stageID, true, elapsedMS, map[string]string{"stage": stage, "stage_id": stageID})
}
