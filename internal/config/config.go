// Package config loads the bridge's runtime configuration from the
// environment using Viper, the way the teacher's am package loads
// application configuration: defaults first, then environment
// variables layered on top, unmarshaled into a typed struct.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nwws-bridge/nwws-bridge/errors"
)

// Config is the full set of runtime settings recognized via
// environment variables.
type Config struct {
	NWWS     NWWSConfig     `mapstructure:"nwws"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Outputs  OutputsConfig  `mapstructure:"outputs"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metric"`
	UGCPath         string `mapstructure:"ugc_path"`
	ShutdownSeconds int    `mapstructure:"shutdown_timeout"`
}

// ShutdownTimeout is the configured graceful-shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

type NWWSConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// OutputsConfig lists which output adapters the pipeline starts.
type OutputsConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
	ClientID    string `mapstructure:"client_id"`
}

// DatabaseConfig selects the driver and connection string for the
// database output. Driver is either "sqlite3" or "pgx"; DSN is a file
// path for sqlite3 or a connection URL for pgx.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	ServerEnabled bool   `mapstructure:"server"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
}

// Load reads configuration from environment variables, applying
// defaults for everything not explicitly set.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("nwws.server", "nwws-oi.weather.gov")
	v.SetDefault("nwws.port", 5222)

	v.SetDefault("outputs.enabled", []string{"console"})

	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic_prefix", "nwws")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "nwws-bridge.db")

	v.SetDefault("metric.server", true)
	v.SetDefault("metric.host", "127.0.0.1")
	v.SetDefault("metric.port", 8080)

	v.SetDefault("ugc_path", "")
	v.SetDefault("shutdown_timeout", 30)
}

// bindEnvVars maps the flat environment variable names used by
// operators onto the nested config keys Viper unmarshals from.
func bindEnvVars(v *viper.Viper) {
	bindings := map[string]string{
		"nwws.username":      "NWWS_USERNAME",
		"nwws.password":      "NWWS_PASSWORD",
		"nwws.server":        "NWWS_SERVER",
		"nwws.port":          "NWWS_PORT",
		"logging.level":      "LOG_LEVEL",
		"logging.file":       "LOG_FILE",
		"outputs.enabled":    "OUTPUTS",
		"mqtt.broker":        "MQTT_BROKER",
		"mqtt.port":          "MQTT_PORT",
		"mqtt.username":      "MQTT_USERNAME",
		"mqtt.password":      "MQTT_PASSWORD",
		"mqtt.topic_prefix":  "MQTT_TOPIC_PREFIX",
		"mqtt.qos":           "MQTT_QOS",
		"mqtt.client_id":     "MQTT_CLIENT_ID",
		"database.driver":    "DB_DRIVER",
		"database.dsn":       "DB_DSN",
		"metric.server":      "METRIC_SERVER",
		"metric.host":        "METRIC_HOST",
		"metric.port":        "METRIC_PORT",
		"ugc_path":           "UGC_PATH",
		"shutdown_timeout":   "SHUTDOWN_TIMEOUT_SECONDS",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// Validate fails fast on configuration that would prevent the bridge
// from doing anything useful.
func (c *Config) Validate() error {
	if c.NWWS.Username == "" || c.NWWS.Password == "" {
		return errors.New("NWWS_USERNAME and NWWS_PASSWORD are required")
	}
	if c.NWWS.Port <= 0 || c.NWWS.Port > 65535 {
		return errors.Newf("invalid NWWS_PORT: %d", c.NWWS.Port)
	}
	for _, o := range c.Outputs.Enabled {
		switch o {
		case "console", "mqtt", "database":
		default:
			return errors.Newf("unknown output %q in OUTPUTS", o)
		}
	}
	return nil
}
