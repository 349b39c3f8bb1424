package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
	"github.com/c360/logstream/pkg/retry"
)

// Publisher is the slice of the NATS connection the sink needs.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSConfig configures a NATSSink.
type NATSConfig struct {
	// Conn is the NATS connection (or a test double).
	Conn Publisher

	// Subject to publish each line to.
	Subject string

	// Retry governs republish attempts on failure. The zero value
	// uses retry.Quick.
	Retry retry.Config

	Logger *slog.Logger
}

// NATSSink subscribes to a publisher and forwards each line to a NATS
// subject as JSON. Publish failures are retried, then counted and
// dropped so the dispatch path never stalls on the broker.
type NATSSink struct {
	conn     Publisher
	subject  string
	retryCfg retry.Config
	logger   *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	published atomic.Int64
	dropped   atomic.Int64
}

// NewNATSSink validates cfg and returns the sink.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.Conn == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("nil connection"), "NATSSink", "NewNATSSink", "config validation")
	}
	if cfg.Subject == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty subject"), "NATSSink", "NewNATSSink", "config validation")
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.Quick()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &NATSSink{
		conn:     cfg.Conn,
		subject:  cfg.Subject,
		retryCfg: retryCfg,
		logger:   logger.With("component", "natssink", "subject", cfg.Subject),
	}, nil
}

// Handle implements pubsub.Subscriber by publishing the line as JSON.
func (s *NATSSink) Handle(line logline.Line) {
	if s.closed.Load() {
		return
	}

	data, err := json.Marshal(line)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("Line marshal failed", "error", err)
		return
	}

	err = retry.Do(context.Background(), s.retryCfg, func() error {
		return s.conn.Publish(s.subject, data)
	})
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("Publish failed after retries",
			"error", errors.WrapTransient(err, "NATSSink", "Handle", "nats publish"))
		return
	}
	s.published.Add(1)
}

// StreamEnded implements pubsub.StreamEndObserver.
func (s *NATSSink) StreamEnded() {
	s.logger.Info("Stream ended",
		"published", s.published.Load(),
		"dropped", s.dropped.Load())
}

// Close stops forwarding. It does not close the underlying
// connection, which the caller owns.
func (s *NATSSink) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
	})
}

// Published returns the count of successfully forwarded lines.
func (s *NATSSink) Published() int64 {
	return s.published.Load()
}

// Dropped returns the count of lines lost to marshal or publish
// failures.
func (s *NATSSink) Dropped() int64 {
	return s.dropped.Load()
}
