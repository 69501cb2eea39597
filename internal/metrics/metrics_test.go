package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementAccumulatesOnRepeatedCalls(t *testing.T) {
	r := NewRegistry()
	r.Increment("events_total", nil, 1)
	r.Increment("events_total", nil, 2)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float64(3), snap[0].Value)
}

func TestIncrementTracksLabelsIndependently(t *testing.T) {
	r := NewRegistry()
	r.Increment("events_total", map[string]string{"output": "mqtt"}, 1)
	r.Increment("events_total", map[string]string{"output": "console"}, 1)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
}

func TestSetOverwritesGaugeValue(t *testing.T) {
	r := NewRegistry()
	r.Set("receiver_state", nil, 1)
	r.Set("receiver_state", nil, 5)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float64(5), snap[0].Value)
}

func TestObserveAccumulatesHistogramBuckets(t *testing.T) {
	r := NewRegistry()
	r.Observe("latency_ms", nil, 3, []float64{1, 5, 10})
	r.Observe("latency_ms", nil, 7, []float64{1, 5, 10})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint64(2), snap[0].Count)
	assert.Equal(t, float64(10), snap[0].Sum)
	assert.Equal(t, uint64(1), snap[0].Buckets[5])
	assert.Equal(t, uint64(2), snap[0].Buckets[10])
}

func TestCollectorPrefixesMetricNames(t *testing.T) {
	r := NewRegistry()
	c := NewCollector(r, "nwwsbridge")
	c.RecordError("connect_failure", "receiver", nil)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "nwwsbridge_errors_total", snap[0].Name)
}

func TestCollectorWithEmptyPrefixDoesNotAddUnderscore(t *testing.T) {
	r := NewRegistry()
	c := NewCollector(r, "")
	c.UpdateStatus("receiver", 1, nil)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "status", snap[0].Name)
}

func TestStartTimingRecordsOperationOnStop(t *testing.T) {
	r := NewRegistry()
	c := NewCollector(r, "nwwsbridge")

	tc := c.StartTiming("parse", nil)
	tc.Stop(true)

	snap := r.Snapshot()
	names := make(map[string]bool)
	for _, s := range snap {
		names[s.Name] = true
	}
	assert.True(t, names["nwwsbridge_operations_total"])
	assert.True(t, names["nwwsbridge_operation_duration_ms"])
}

func TestSanitizeLabelsTruncatesAndStripsUnsafeCharacters(t *testing.T) {
	r := NewRegistry()
	longValue := ""
	for i := 0; i < 100; i++ {
		longValue += "a"
	}
	r.Increment("weird", map[string]string{"k": "bad value!#" + longValue}, 1)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.LessOrEqual(t, len(snap[0].Labels["k"]), 64)
	assert.NotContains(t, snap[0].Labels["k"], "!")
	assert.NotContains(t, snap[0].Labels["k"], "#")
}
