// Package errhandler classifies pipeline errors and applies one of
// four recovery strategies per stage: fail fast, continue, retry with
// backoff, or circuit breaker. The classification and retry shape
// follow the same pattern the async job system uses to decide whether
// a failed job is worth retrying.
package errhandler

import (
	"strings"
	"sync"
	"time"

	"github.com/nwws-bridge/nwws-bridge/errors"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// Code classifies an error into one of the taxonomy buckets a
// pipeline stage can encounter.
type Code string

const (
	CodeConfig      Code = "config"       // fatal, not retryable
	CodeTransient   Code = "transient_io" // network/broker/db — retryable
	CodeProtocol    Code = "protocol"     // malformed stanza/frame — per-event, dropped
	CodeParse       Code = "parse"        // transformer couldn't parse — pass through unchanged
	CodeBusiness    Code = "business"     // filter decision, not an error
	CodeOutput      Code = "output"       // one output failed to deliver
	CodeCircuitOpen Code = "circuit_open" // synthesized by the circuit breaker itself
	CodeUnknown     Code = "unknown"
)

// Context is the structured classification of one error occurrence.
type Context struct {
	Stage       string
	StageID     string
	Code        Code
	Message     string
	Retryable   bool
	Recoverable bool
}

// Classify inspects an error's message to assign it a Code. Network
// and I/O errors are retryable; parse and business-rule outcomes are
// not errors worth retrying; config errors are fatal.
func Classify(stage, stageID string, err error) Context {
	if err == nil {
		return Context{Stage: stage, StageID: stageID, Code: CodeUnknown, Retryable: false, Recoverable: true}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	ctx := Context{Stage: stage, StageID: stageID, Message: msg}

	switch {
	case strings.Contains(lower, "circuit") && strings.Contains(lower, "open"):
		ctx.Code = CodeCircuitOpen
		ctx.Retryable = false
		ctx.Recoverable = false
	case strings.Contains(lower, "missing") && (strings.Contains(lower, "nwws_username") || strings.Contains(lower, "nwws_password")):
		ctx.Code = CodeConfig
		ctx.Retryable = false
		ctx.Recoverable = false
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network") ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "broker") ||
		strings.Contains(lower, "database") || strings.Contains(lower, "sql"):
		ctx.Code = CodeTransient
		ctx.Retryable = true
		ctx.Recoverable = true
	case strings.Contains(lower, "malformed") || strings.Contains(lower, "stanza") || strings.Contains(lower, "frame"):
		ctx.Code = CodeProtocol
		ctx.Retryable = false
		ctx.Recoverable = true
	case strings.Contains(lower, "parse"):
		ctx.Code = CodeParse
		ctx.Retryable = false
		ctx.Recoverable = true
	default:
		ctx.Code = CodeUnknown
		ctx.Retryable = false
		ctx.Recoverable = true
	}
	return ctx
}

// Strategy selects how a Handler reacts to a classified error.
type Strategy string

const (
	FailFast       Strategy = "fail_fast"
	Continue       Strategy = "continue"
	Retry          Strategy = "retry"
	CircuitBreaker Strategy = "circuit_breaker"
)

// RetryPolicy configures the Retry strategy's exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// CircuitPolicy configures the CircuitBreaker strategy.
type CircuitPolicy struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

type stageState struct {
	mu                  sync.Mutex
	retryCount          int
	consecutiveFailures int
	circuit             circuitState
	openedAt            time.Time
	lastErr             error
	halfOpenAdmitted    bool
}

// Handler applies a configured Strategy to errors from any number of
// stages, keyed by "<stage>.<stage_id>" so that, e.g., two different
// outputs each get their own circuit breaker.
type Handler struct {
	strategy Strategy
	retry    RetryPolicy
	circuit  CircuitPolicy

	mu     sync.Mutex
	states map[string]*stageState
}

// New builds a Handler. Zero-value retry/circuit policies fall back
// to sane defaults (3 attempts at 200ms*2^n backoff; 5-failure
// threshold with a 60s open timeout).
func New(strategy Strategy, retry RetryPolicy, circuit CircuitPolicy) *Handler {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 200 * time.Millisecond
	}
	if retry.Multiplier <= 1 {
		retry.Multiplier = 2.0
	}
	if circuit.FailureThreshold <= 0 {
		circuit.FailureThreshold = 5
	}
	if circuit.OpenTimeout <= 0 {
		circuit.OpenTimeout = 60 * time.Second
	}
	return &Handler{
		strategy: strategy,
		retry:    retry,
		circuit:  circuit,
		states:   make(map[string]*stageState),
	}
}

func (h *Handler) state(key string) *stageState {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.states[key]
	if !ok {
		s = &stageState{circuit: circuitClosed}
		h.states[key] = s
	}
	return s
}

func stateKey(stage, stageID string) string {
	return stage + "." + stageID
}

// Admit is called before a circuit-breaker-guarded stage runs. It
// returns a synthesized circuit-open error while the breaker is open
// and its open timeout has not elapsed, or when the half-open trial
// slot is already taken; otherwise it returns nil and the caller
// proceeds and reports the result via Outcome.
func (h *Handler) Admit(stage, stageID string) error {
	if h.strategy != CircuitBreaker {
		return nil
	}
	s := h.state(stateKey(stage, stageID))
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.circuit {
	case circuitOpen:
		if time.Since(s.openedAt) < h.circuit.OpenTimeout {
			return errors.Newf("circuit open for %s.%s", stage, stageID)
		}
		s.circuit = circuitHalfOpen
		s.halfOpenAdmitted = false
		fallthrough
	case circuitHalfOpen:
		if s.halfOpenAdmitted {
			return errors.Newf("circuit open for %s.%s", stage, stageID)
		}
		s.halfOpenAdmitted = true
		return nil
	default:
		return nil
	}
}

// Decision tells the caller of Outcome whether to retry, continue past
// the error, or propagate it.
type Decision struct {
	Retry     bool
	RetryWait time.Duration
	Propagate bool // if true and err != nil, caller should return the error
}

// Outcome reports whether a stage's attempt succeeded after passing
// Admit, updating circuit/retry bookkeeping and returning a Decision.
//
// attempt is the zero-based attempt number for the current event,
// supplied by the caller: 0 for the first try, and one more for each
// retry. Outcome does not track it itself.
func (h *Handler) Outcome(stage, stageID string, attempt int, err error) Decision {
	key := stateKey(stage, stageID)
	s := h.state(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.consecutiveFailures = 0
		s.retryCount = 0
		if s.circuit == circuitHalfOpen || s.circuit == circuitOpen {
			logger.Infow("circuit closed after successful probe", "stage", stage, "stage_id", stageID)
		}
		s.circuit = circuitClosed
		return Decision{}
	}

	s.lastErr = err
	s.consecutiveFailures++

	switch h.strategy {
	case FailFast:
		return Decision{Propagate: true}

	case Continue:
		return Decision{Propagate: false}

	case Retry:
		ctx := Classify(stage, stageID, err)
		if !ctx.Retryable || attempt+1 >= h.retry.MaxAttempts {
			return Decision{Propagate: true}
		}
		wait := time.Duration(float64(h.retry.BaseDelay) * pow(h.retry.Multiplier, attempt))
		return Decision{Retry: true, RetryWait: wait}

	case CircuitBreaker:
		if s.consecutiveFailures >= h.circuit.FailureThreshold && s.circuit != circuitOpen {
			s.circuit = circuitOpen
			s.openedAt = time.Now()
			logger.Warnw("circuit opened", "stage", stage, "stage_id", stageID,
				"consecutive_failures", s.consecutiveFailures)
		} else if s.circuit == circuitHalfOpen {
			// probe failed, reopen
			s.circuit = circuitOpen
			s.openedAt = time.Now()
		}
		return Decision{Propagate: true}

	default:
		return Decision{Propagate: true}
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
