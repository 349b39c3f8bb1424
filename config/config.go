package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
)

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("reading config file: %w", err),
			"Config", "Load", "file read")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("parsing config file: %w", err),
			"Config", "Load", "yaml parse")
	}

	cfg.applyEnvironmentOverrides()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a configuration for errors and compiles watcher
// patterns.
func Validate(cfg *Config) error {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	if err := validateSource(&cfg.Source); err != nil {
		return invalid(fmt.Errorf("source: %w", err))
	}

	if cfg.Parser.Location != "" {
		if _, err := time.LoadLocation(cfg.Parser.Location); err != nil {
			return invalid(fmt.Errorf("parser.location: %w", err))
		}
	}

	for i := range cfg.Watchers {
		if err := validateWatcher(&cfg.Watchers[i]); err != nil {
			name := cfg.Watchers[i].Name
			if name == "" {
				name = cfg.Watchers[i].Pattern
			}
			return invalid(fmt.Errorf("watchers[%d] (%s): %w", i, name, err))
		}
	}

	if cfg.Sinks.File != nil && cfg.Sinks.File.Path == "" {
		return invalid(fmt.Errorf("sinks.file: %w: path", errors.ErrMissingConfig))
	}
	if cfg.Sinks.NATS != nil {
		if cfg.Sinks.NATS.URL == "" {
			return invalid(fmt.Errorf("sinks.nats: %w: url", errors.ErrMissingConfig))
		}
		if cfg.Sinks.NATS.Subject == "" {
			return invalid(fmt.Errorf("sinks.nats: %w: subject", errors.ErrMissingConfig))
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return invalid(fmt.Errorf("retry.max_attempts: must not be negative"))
	}
	return nil
}

func invalid(err error) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
		"Config", "Validate", "config validation")
}

func validateSource(src *SourceConfig) error {
	switch src.Type {
	case SourceStdin:
		return nil
	case SourceFile:
		if src.Path == "" {
			return fmt.Errorf("%w: path", errors.ErrMissingConfig)
		}
	case SourceCommand:
		if src.Command == "" {
			return fmt.Errorf("%w: command", errors.ErrMissingConfig)
		}
	case SourceWebSocket:
		if src.URL == "" {
			return fmt.Errorf("%w: url", errors.ErrMissingConfig)
		}
	case "":
		return fmt.Errorf("%w: type", errors.ErrMissingConfig)
	default:
		return fmt.Errorf("invalid type %q (must be stdin, file, command, or websocket)", src.Type)
	}
	return nil
}

func validateWatcher(w *WatcherConfig) error {
	if w.Pattern == "" {
		return fmt.Errorf("%w: pattern", errors.ErrMissingConfig)
	}
	re, err := regexp.Compile(w.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	w.compiledPattern = re

	if w.MinLevel != "" {
		if _, err := logline.ParseLevel(w.MinLevel); err != nil {
			return fmt.Errorf("invalid min_level %q", w.MinLevel)
		}
	}
	if w.Timeout == 0 {
		w.Timeout = DefaultWaitTimeout
	}
	return nil
}
