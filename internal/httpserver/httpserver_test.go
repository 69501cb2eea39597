package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
)

func newTestServer() *Server {
	registry := metrics.NewRegistry()
	return New("127.0.0.1:0", registry)
}

func TestHealthReturnsOKWithServiceInfo(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nwws-bridge", body["service"])
}

func TestReadyReturns200RegardlessOfReadinessState(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "starting", body["status"])

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestLiveReportsUptime(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.handleLive(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.Increment("events_total", nil, 1)
	s := New("127.0.0.1:0", registry)

	rec := httptest.NewRecorder()
	s.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_total")
}

func TestMetricsJSONEndpointServesStructuredSnapshot(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.Increment("events_total", nil, 1)
	s := New("127.0.0.1:0", registry)

	rec := httptest.NewRecorder()
	s.handleMetricsJSON(rec, httptest.NewRequest(http.MethodGet, "/metrics/json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_total")
}
