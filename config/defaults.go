package config

import (
	"os"
	"time"
)

// Default values for configuration.
const (
	DefaultName        = "logcat"
	DefaultPoll        = 500 * time.Millisecond
	DefaultMetricsPath = "/metrics"
	DefaultWaitTimeout = 60 * time.Second
)

// Environment variable names.
const (
	EnvSourcePath = "LOGSTREAM_SOURCE_PATH"
	EnvNATSURL    = "LOGSTREAM_NATS_URL"
)

// Default returns a configuration with sensible defaults: read from
// stdin under the default publisher name.
func Default() *Config {
	return &Config{
		Name: DefaultName,
		Source: SourceConfig{
			Type: SourceStdin,
			Poll: DefaultPoll,
		},
		Metrics: MetricsConfig{
			Path: DefaultMetricsPath,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to
// the config.
func (c *Config) applyEnvironmentOverrides() {
	if path := os.Getenv(EnvSourcePath); path != "" {
		c.Source.Path = path
	}
	if url := os.Getenv(EnvNATSURL); url != "" && c.Sinks.NATS != nil {
		c.Sinks.NATS.URL = url
	}
}
