// Package config provides configuration loading and validation for
// logstream.
package config

import (
	"regexp"
	"time"
)

// SourceType selects where the line stream comes from.
type SourceType string

const (
	SourceStdin     SourceType = "stdin"
	SourceFile      SourceType = "file"
	SourceCommand   SourceType = "command"
	SourceWebSocket SourceType = "websocket"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	// Name labels this publisher in logs and metrics.
	Name string `yaml:"name,omitempty"`

	Source   SourceConfig    `yaml:"source"`
	Parser   ParserConfig    `yaml:"parser,omitempty"`
	Watchers []WatcherConfig `yaml:"watchers,omitempty"`
	Sinks    SinkConfig      `yaml:"sinks,omitempty"`
	Metrics  MetricsConfig   `yaml:"metrics,omitempty"`
	Retry    RetryConfig     `yaml:"retry,omitempty"`
}

// SourceConfig defines the line stream the publisher reads.
type SourceConfig struct {
	Type SourceType `yaml:"type"`

	// File source fields.
	Path      string        `yaml:"path,omitempty"`
	FromStart bool          `yaml:"from_start,omitempty"`
	Poll      time.Duration `yaml:"poll,omitempty"`

	// Command source fields.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	// WebSocket source fields.
	URL string `yaml:"url,omitempty"`
}

// ParserConfig tunes timestamp resolution for the year-less
// threadtime format.
type ParserConfig struct {
	// Year applied to parsed timestamps. Zero means the current year.
	Year int `yaml:"year,omitempty"`

	// Location name for parsed timestamps, e.g. "UTC" or
	// "America/New_York". Empty means the local time zone.
	Location string `yaml:"location,omitempty"`
}

// WatcherConfig defines one pattern event armed at startup.
type WatcherConfig struct {
	Name     string        `yaml:"name"`
	Pattern  string        `yaml:"pattern"`
	Tag      string        `yaml:"tag,omitempty"`
	MinLevel string        `yaml:"min_level,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`

	// compiledPattern is populated during validation.
	compiledPattern *regexp.Regexp
}

// CompiledPattern returns the pattern compiled by Validate.
func (w *WatcherConfig) CompiledPattern() *regexp.Regexp {
	return w.compiledPattern
}

// SinkConfig enables optional persistence and forwarding of the
// stream.
type SinkConfig struct {
	File *FileSinkConfig `yaml:"file,omitempty"`
	NATS *NATSSinkConfig `yaml:"nats,omitempty"`
}

// FileSinkConfig appends every line to a file.
type FileSinkConfig struct {
	Path string `yaml:"path"`
}

// NATSSinkConfig forwards every line to a NATS subject as JSON.
type NATSSinkConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig exposes Prometheus metrics over HTTP when Addr is
// set.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// RetryConfig governs source open retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
}
