package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NWWS_USERNAME", "operator")
	t.Setenv("NWWS_PASSWORD", "secret")
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nwws-oi.weather.gov", cfg.NWWS.Server)
	assert.Equal(t, 5222, cfg.NWWS.Port)
	assert.Equal(t, []string{"console"}, cfg.Outputs.Enabled)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Metrics.ServerEnabled)
	assert.Equal(t, 30, cfg.ShutdownSeconds)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NWWS_PORT", "5223")
	t.Setenv("OUTPUTS", "console,mqtt")
	t.Setenv("MQTT_BROKER", "mqtt.example.com")
	t.Setenv("METRIC_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5223, cfg.NWWS.Port)
	assert.Equal(t, "mqtt.example.com", cfg.MQTT.Broker)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadFailsWithoutCredentials(t *testing.T) {
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsUnknownOutput(t *testing.T) {
	cfg := &Config{
		NWWS:    NWWSConfig{Username: "a", Password: "b", Port: 5222},
		Outputs: OutputsConfig{Enabled: []string{"carrier_pigeon"}},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := &Config{NWWS: NWWSConfig{Username: "a", Password: "b", Port: 99999}}
	assert.Error(t, cfg.Validate())
}

func TestShutdownTimeoutConvertsSecondsToDuration(t *testing.T) {
	cfg := &Config{ShutdownSeconds: 45}
	assert.Equal(t, 45e9, float64(cfg.ShutdownTimeout()))
}
