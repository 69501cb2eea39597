package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
)

func TestNextBackoffDoublesUntilCapped(t *testing.T) {
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second, time.Minute))
	assert.Equal(t, 8*time.Second, nextBackoff(4*time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextBackoff(50*time.Second, time.Minute))
}

func TestFrameNOAAPortAddsControlBytesAndNormalizesLineEndings(t *testing.T) {
	framed := frameNOAAPort("line one\n\nline two")

	assert.Equal(t, byte(0x01), framed[0])
	assert.Equal(t, byte(0x03), framed[len(framed)-1])
	assert.Contains(t, string(framed), "line one\r\r\nline two")
}

func TestFrameNOAAPortEnsuresTrailingFrameSequence(t *testing.T) {
	framed := frameNOAAPort("already terminated\r\r\n")
	s := string(framed)
	assert.Equal(t, "\x01already terminated\r\r\n\x03", s)
}

func TestStateTransitionsUpdateStatusMetric(t *testing.T) {
	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry, "nwwsbridge")
	events := make(chan event.Event, 1)

	r := New(Config{Username: "u", Password: "p", Server: "s", Port: 5222}, events, collector)
	assert.Equal(t, StateDisconnected, r.State())

	r.setState(StateRunning)
	assert.Equal(t, StateRunning, r.State())

	found := false
	for _, s := range registry.Snapshot() {
		if s.Name == "nwwsbridge_status" {
			found = true
			assert.Equal(t, stateValue(StateRunning), s.Value)
		}
	}
	assert.True(t, found)
}

func TestIdleSinceIsZeroBeforeFirstMessage(t *testing.T) {
	events := make(chan event.Event, 1)
	r := New(Config{Username: "u", Password: "p", Server: "s", Port: 5222}, events, nil)
	assert.Equal(t, time.Duration(0), r.idleSince())

	r.touchLastMessage()
	assert.Less(t, r.idleSince(), time.Second)
}

func TestConfigWithDefaultsFillsZeroFields(t *testing.T) {
	cfg := Config{Username: "u", Password: "p", Server: "s", Port: 5222}.withDefaults()

	assert.Equal(t, defaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, defaultWatchdogInterval, cfg.WatchdogInterval)
	assert.Equal(t, defaultBaseBackoff, cfg.BaseBackoff)
	assert.Equal(t, defaultMaxBackoff, cfg.MaxBackoff)
	assert.Equal(t, defaultQueueTimeout, cfg.QueueTimeout)
}
