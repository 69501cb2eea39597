package errhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/errors"
)

func TestClassifyRecognizesTransientIOErrors(t *testing.T) {
	ctx := Classify("output", "mqtt", errors.New("connection refused to broker"))
	assert.Equal(t, CodeTransient, ctx.Code)
	assert.True(t, ctx.Retryable)
}

func TestClassifyRecognizesConfigErrorsAsFatal(t *testing.T) {
	ctx := Classify("startup", "config", errors.New("missing NWWS_USERNAME"))
	assert.Equal(t, CodeConfig, ctx.Code)
	assert.False(t, ctx.Retryable)
	assert.False(t, ctx.Recoverable)
}

func TestClassifyRecognizesParseErrorsAsNonRetryable(t *testing.T) {
	ctx := Classify("transform", "noaaport", errors.New("failed to parse VTEC line"))
	assert.Equal(t, CodeParse, ctx.Code)
	assert.False(t, ctx.Retryable)
	assert.True(t, ctx.Recoverable)
}

func TestFailFastAlwaysPropagates(t *testing.T) {
	h := New(FailFast, RetryPolicy{}, CircuitPolicy{})
	decision := h.Outcome("output", "console", 0, errors.New("boom"))
	assert.True(t, decision.Propagate)
}

func TestContinueNeverPropagates(t *testing.T) {
	h := New(Continue, RetryPolicy{}, CircuitPolicy{})
	decision := h.Outcome("filter", "duplicate", 0, errors.New("boom"))
	assert.False(t, decision.Propagate)
}

func TestRetryBacksOffUntilMaxAttemptsThenPropagates(t *testing.T) {
	h := New(Retry, RetryPolicy{MaxAttempts: 2, BaseDelay: 10 * time.Millisecond, Multiplier: 2}, CircuitPolicy{})

	d := h.Outcome("output", "mqtt", 0, errors.New("connection timeout"))
	assert.True(t, d.Retry)
	assert.Equal(t, 10*time.Millisecond, d.RetryWait)

	d = h.Outcome("output", "mqtt", 1, errors.New("connection timeout"))
	assert.True(t, d.Propagate)
	assert.False(t, d.Retry)
}

func TestRetryDoesNotRetryNonRetryableErrors(t *testing.T) {
	h := New(Retry, RetryPolicy{MaxAttempts: 5}, CircuitPolicy{})
	d := h.Outcome("transform", "noaaport", 0, errors.New("failed to parse segment"))
	assert.True(t, d.Propagate)
	assert.False(t, d.Retry)
}

func TestCircuitBreakerOpensAfterThresholdAndRejectsUntilTimeoutElapses(t *testing.T) {
	h := New(CircuitBreaker, RetryPolicy{}, CircuitPolicy{FailureThreshold: 2, OpenTimeout: 20 * time.Millisecond})

	require.NoError(t, h.Admit("output", "mqtt"))
	h.Outcome("output", "mqtt", 0, errors.New("connection refused"))
	require.NoError(t, h.Admit("output", "mqtt"))
	h.Outcome("output", "mqtt", 0, errors.New("connection refused"))

	err := h.Admit("output", "mqtt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")

	time.Sleep(25 * time.Millisecond)
	assert.NoError(t, h.Admit("output", "mqtt"), "half-open probe should be admitted once")

	h.Outcome("output", "mqtt", 0, nil)
	assert.NoError(t, h.Admit("output", "mqtt"), "circuit should be closed after a successful probe")
}

func TestOutcomeResetsFailuresOnSuccess(t *testing.T) {
	h := New(CircuitBreaker, RetryPolicy{}, CircuitPolicy{FailureThreshold: 2})
	h.Outcome("output", "db", 0, errors.New("database unavailable"))
	h.Outcome("output", "db", 0, nil)
	// a single subsequent failure should not open the circuit since
	// the success reset the consecutive-failure counter
	h.Outcome("output", "db", 0, errors.New("database unavailable"))
	assert.NoError(t, h.Admit("output", "db"))
}
