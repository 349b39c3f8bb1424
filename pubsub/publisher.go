package pubsub

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
	"github.com/c360/logstream/metric"
	"github.com/c360/logstream/pkg/retry"
	"github.com/c360/logstream/source"
)

const (
	// initialScanBuffer is the starting size of the read loop's line
	// buffer; maxScanBuffer caps a single line.
	initialScanBuffer = 64 * 1024
	maxScanBuffer     = 1024 * 1024
)

// PublisherDeps holds the dependencies for a Publisher. Source is
// required; everything else has a working default.
type PublisherDeps struct {
	// Name labels logs and metrics. Defaults to "logcat".
	Name string

	// Source supplies the raw line stream.
	Source source.Source

	// Parser turns raw lines into structured lines. Defaults to a
	// parser with the current year and local time zone.
	Parser *logline.Parser

	Logger   *slog.Logger
	Registry *metric.Registry

	// Retry governs how stubbornly Start retries opening the source.
	// The zero value uses retry.Quick.
	Retry retry.Config
}

// Publisher reads a line stream from its source and fans each parsed
// line out to all subscribers, synchronously and in subscription
// order. Lines that fail to parse are counted and dropped.
type Publisher struct {
	name     string
	src      source.Source
	parser   *logline.Parser
	logger   *slog.Logger
	metrics  *metrics
	retryCfg retry.Config

	// mu guards subs and is held across each line's dispatch, so
	// Unsubscribe returning means no handler call is in flight.
	mu   sync.Mutex
	subs []subscriberEntry

	lifecycleMu sync.Mutex
	reader      io.ReadCloser
	shutdown    chan struct{}
	done        chan struct{}
	running     atomic.Bool
	ended       atomic.Bool
	startTime   time.Time

	linesReceived  atomic.Int64
	linesPublished atomic.Int64
	parseErrors    atomic.Int64
	lastActivity   atomic.Int64 // unix nanos, 0 until first line

	errMu  sync.Mutex
	runErr error
}

type subscriberEntry struct {
	id  uuid.UUID
	sub Subscriber
}

// NewPublisher creates a Publisher from deps. The source is validated
// at Start so a partially configured publisher can still be wired up.
func NewPublisher(deps PublisherDeps) *Publisher {
	name := deps.Name
	if name == "" {
		name = "logcat"
	}
	parser := deps.Parser
	if parser == nil {
		parser = logline.NewParser()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryCfg := deps.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.Quick()
	}

	return &Publisher{
		name:     name,
		src:      deps.Source,
		parser:   parser,
		logger:   logger.With("component", "publisher", "name", name),
		metrics:  newMetrics(deps.Registry, name),
		retryCfg: retryCfg,
	}
}

// Name returns the publisher's label.
func (p *Publisher) Name() string {
	return p.name
}

// Start opens the source and launches the read loop. Starting an
// already running publisher is a no-op. The context bounds both the
// open retries and the lifetime of the stream: when it is cancelled
// the source is closed and the stream ends.
func (p *Publisher) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running.Load() {
		return nil
	}
	if p.src == nil {
		return errors.WrapInvalid(
			fmt.Errorf("no source configured"),
			"Publisher", "Start", "source validation",
		)
	}

	reader, err := retry.DoWithResult(ctx, p.retryCfg, func() (io.ReadCloser, error) {
		return p.src.Open(ctx)
	})
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %s: %v", errors.ErrSourceUnavailable, p.src.Name(), err),
			"Publisher", "Start", "source open",
		)
	}

	p.reader = reader
	p.shutdown = make(chan struct{})
	p.done = make(chan struct{})
	p.ended.Store(false)
	p.errMu.Lock()
	p.runErr = nil
	p.errMu.Unlock()
	p.startTime = time.Now()
	p.running.Store(true)
	if p.metrics != nil {
		p.metrics.status.Set(1)
	}

	go p.watchContext(ctx, p.shutdown, reader)
	go p.readLoop(reader, p.shutdown, p.done)

	p.logger.Info("Publisher started", "source", p.src.Name())
	return nil
}

// watchContext closes the reader when ctx is cancelled so the read
// loop unblocks and winds down.
func (p *Publisher) watchContext(ctx context.Context, shutdown chan struct{}, reader io.ReadCloser) {
	select {
	case <-ctx.Done():
		if err := reader.Close(); err != nil {
			p.logger.Debug("Reader close after context cancel", "error", err)
		}
	case <-shutdown:
	}
}

func (p *Publisher) readLoop(reader io.ReadCloser, shutdown, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)

	for scanner.Scan() {
		select {
		case <-shutdown:
			p.finish(nil)
			return
		default:
		}
		p.publish(scanner.Text())
	}

	err := scanner.Err()
	select {
	case <-shutdown:
		// A read error after Stop closed the reader is expected.
		err = nil
	default:
	}
	p.finish(err)
}

// publish parses one raw line and dispatches it to every subscriber
// in order. The subscriber list is locked for the whole dispatch.
func (p *Publisher) publish(raw string) {
	p.linesReceived.Add(1)
	if p.metrics != nil {
		p.metrics.linesReceived.Inc()
	}

	line, err := p.parser.Parse(raw)
	if err != nil {
		p.parseErrors.Add(1)
		if p.metrics != nil {
			p.metrics.parseDrops.Inc()
		}
		p.logger.Debug("Dropped unparseable line", "raw", raw)
		return
	}
	p.lastActivity.Store(line.HostTime.UnixNano())

	start := time.Now()
	p.mu.Lock()
	for _, entry := range p.subs {
		entry.sub.Handle(line)
	}
	p.mu.Unlock()

	p.linesPublished.Add(1)
	if p.metrics != nil {
		p.metrics.linesPublished.Inc()
		p.metrics.dispatchDuration.Observe(time.Since(start).Seconds())
	}
}

// finish marks the stream as ended, records any terminal error, and
// releases subscribers blocked on the stream's end.
func (p *Publisher) finish(err error) {
	p.running.Store(false)
	p.ended.Store(true)
	if p.metrics != nil {
		p.metrics.status.Set(0)
	}

	if err != nil {
		wrapped := errors.WrapTransient(err, "Publisher", "readLoop", "stream read")
		p.errMu.Lock()
		p.runErr = wrapped
		p.errMu.Unlock()
		p.logger.Warn("Stream ended with error", "error", err)
	} else {
		p.logger.Info("Stream ended",
			"lines_received", p.linesReceived.Load(),
			"lines_published", p.linesPublished.Load())
	}

	p.mu.Lock()
	entries := make([]subscriberEntry, len(p.subs))
	copy(entries, p.subs)
	p.mu.Unlock()

	// Outside the dispatch lock: StreamEnded only closes a channel.
	for _, entry := range entries {
		if obs, ok := entry.sub.(StreamEndObserver); ok {
			obs.StreamEnded()
		}
	}
}

// Stop closes the source and waits up to timeout for the read loop to
// exit. After a nil return no subscriber will be invoked again.
// Stopping a publisher that never started, or stopping twice, is a
// no-op.
func (p *Publisher) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	shutdown, done, reader := p.shutdown, p.done, p.reader
	if shutdown != nil {
		select {
		case <-shutdown:
		default:
			close(shutdown)
		}
	}
	p.lifecycleMu.Unlock()

	if shutdown == nil {
		return nil
	}

	if err := reader.Close(); err != nil {
		p.logger.Debug("Reader close during stop", "error", err)
	}

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("read loop did not exit within %v", timeout),
			"Publisher", "Stop", "shutdown wait",
		)
	}

	p.logger.Info("Publisher stopped")
	return nil
}

// Subscribe registers sub for all subsequent lines and returns its
// handle. A subscriber added after the stream ended is told so
// immediately, so its waiters never block forever.
func (p *Publisher) Subscribe(sub Subscriber) Subscription {
	id := uuid.New()

	p.mu.Lock()
	p.subs = append(p.subs, subscriberEntry{id: id, sub: sub})
	n := len(p.subs)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.subscribers.Set(float64(n))
	}

	if p.ended.Load() {
		if obs, ok := sub.(StreamEndObserver); ok {
			obs.StreamEnded()
		}
	}
	return Subscription{id: id}
}

// Unsubscribe removes the subscription. When it returns no call to
// the subscriber's Handle is in flight. Unknown or zero handles are
// ignored.
func (p *Publisher) Unsubscribe(s Subscription) {
	if !s.Valid() {
		return
	}

	p.mu.Lock()
	for i, entry := range p.subs {
		if entry.id == s.id {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			break
		}
	}
	n := len(p.subs)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.subscribers.Set(float64(n))
	}
}

// CancelFunc detaches an event subscriber from its publisher. It is
// safe to call more than once and is meant to be deferred.
type CancelFunc func()

// Event compiles pattern, subscribes a one-shot EventSubscriber for
// it, and returns the subscriber with its cancel function. Because
// the subscription exists before Event returns, a line published
// immediately after cannot be missed.
func (p *Publisher) Event(pattern string, opts ...EventOption) (*EventSubscriber, CancelFunc, error) {
	if p.metrics != nil {
		opts = append(opts, withFireHook(p.metrics.eventsFired.Inc))
	}
	ev, err := NewEvent(pattern, opts...)
	if err != nil {
		return nil, nil, err
	}

	sub := p.Subscribe(ev)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.Unsubscribe(sub)
		})
	}
	return ev, cancel, nil
}

// Health is a point-in-time snapshot of the publisher's state.
type Health struct {
	Running        bool
	LinesReceived  int64
	LinesPublished int64
	ParseErrors    int64
	Subscribers    int
	LastActivity   time.Time
	Uptime         time.Duration
	Err            error
}

// Health reports the publisher's current counters and terminal error,
// if any.
func (p *Publisher) Health() Health {
	p.mu.Lock()
	n := len(p.subs)
	p.mu.Unlock()

	var last time.Time
	if nanos := p.lastActivity.Load(); nanos != 0 {
		last = time.Unix(0, nanos)
	}

	var uptime time.Duration
	p.lifecycleMu.Lock()
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime)
	}
	p.lifecycleMu.Unlock()

	p.errMu.Lock()
	err := p.runErr
	p.errMu.Unlock()

	return Health{
		Running:        p.running.Load(),
		LinesReceived:  p.linesReceived.Load(),
		LinesPublished: p.linesPublished.Load(),
		ParseErrors:    p.parseErrors.Load(),
		Subscribers:    n,
		LastActivity:   last,
		Uptime:         uptime,
		Err:            err,
	}
}

// Running reports whether the read loop is active.
func (p *Publisher) Running() bool {
	return p.running.Load()
}

// Done returns a channel closed when the read loop exits, or nil if
// the publisher never started.
func (p *Publisher) Done() <-chan struct{} {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.done
}
