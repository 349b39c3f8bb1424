package pubsub

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
)

// EventSubscriber fires once when a published line's message matches
// its pattern and then ignores all further lines. Waiters block on
// Wait or WaitTimeout until the event fires, the stream ends, or
// their deadline passes.
type EventSubscriber struct {
	pattern  *regexp.Regexp
	tag      string
	minLevel logline.Level
	fireHook func()

	fireOnce sync.Once
	endOnce  sync.Once
	fired    chan struct{}
	ended    chan struct{}

	mu      sync.RWMutex
	trigger logline.Line
	match   []string
}

// EventOption configures an EventSubscriber.
type EventOption func(*EventSubscriber)

// WithTag restricts matching to lines whose tag is exactly tag.
func WithTag(tag string) EventOption {
	return func(e *EventSubscriber) {
		e.tag = tag
	}
}

// WithMinLevel restricts matching to lines at or above level severity.
func WithMinLevel(level logline.Level) EventOption {
	return func(e *EventSubscriber) {
		e.minLevel = level
	}
}

// withFireHook installs a callback invoked once when the event fires.
// Used by the publisher to count fired events.
func withFireHook(hook func()) EventOption {
	return func(e *EventSubscriber) {
		e.fireHook = hook
	}
}

// NewEvent compiles pattern and returns a one-shot subscriber for it.
// An invalid pattern or level fails here rather than at match time.
func NewEvent(pattern string, opts ...EventOption) (*EventSubscriber, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q: %v", errors.ErrInvalidPattern, pattern, err),
			"EventSubscriber", "NewEvent", "pattern compilation",
		)
	}

	e := &EventSubscriber{
		pattern: re,
		fired:   make(chan struct{}),
		ended:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.minLevel != 0 && !e.minLevel.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrInvalidLevel, string(e.minLevel)),
			"EventSubscriber", "NewEvent", "level validation",
		)
	}
	return e, nil
}

// Handle implements Subscriber. The first line passing the tag and
// level filters whose message matches the pattern fires the event;
// everything after that is ignored.
func (e *EventSubscriber) Handle(line logline.Line) {
	if e.Fired() {
		return
	}
	if e.tag != "" && line.Tag != e.tag {
		return
	}
	if e.minLevel != 0 && !line.Level.AtLeast(e.minLevel) {
		return
	}
	m := e.pattern.FindStringSubmatch(line.Message)
	if m == nil {
		return
	}
	e.fireOnce.Do(func() {
		e.mu.Lock()
		e.trigger = line
		e.match = m
		e.mu.Unlock()
		close(e.fired)
		if e.fireHook != nil {
			e.fireHook()
		}
	})
}

// StreamEnded implements StreamEndObserver. It releases blocked
// waiters with ErrStreamEnded unless the event already fired.
func (e *EventSubscriber) StreamEnded() {
	e.endOnce.Do(func() {
		close(e.ended)
	})
}

// Fired reports whether the event has fired.
func (e *EventSubscriber) Fired() bool {
	select {
	case <-e.fired:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the event fires. It lets callers
// select over several events at once.
func (e *EventSubscriber) Done() <-chan struct{} {
	return e.fired
}

// Wait blocks until the event fires, the stream ends, or ctx is done.
// A nil return means the event fired; ErrStreamEnded means the stream
// terminated first; otherwise the context's error is returned.
func (e *EventSubscriber) Wait(ctx context.Context) error {
	// A fired event stays fired even if the stream ended afterward.
	if e.Fired() {
		return nil
	}
	select {
	case <-e.fired:
		return nil
	case <-e.ended:
		// The firing line may have raced the end of stream.
		if e.Fired() {
			return nil
		}
		return errors.ErrStreamEnded
	case <-ctx.Done():
		if e.Fired() {
			return nil
		}
		return ctx.Err()
	}
}

// WaitTimeout is Wait with a deadline expressed as a duration. It
// returns ErrWaitTimeout when the deadline passes first.
func (e *EventSubscriber) WaitTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := e.Wait(ctx)
	if err == context.DeadlineExceeded {
		return errors.ErrWaitTimeout
	}
	return err
}

// Trigger returns the line that fired the event. The zero Line is
// returned while the event has not fired.
func (e *EventSubscriber) Trigger() logline.Line {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trigger
}

// Groups returns the capture groups of the firing match, with the
// full match at index 0, or nil while the event has not fired.
func (e *EventSubscriber) Groups() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.match == nil {
		return nil
	}
	out := make([]string, len(e.match))
	copy(out, e.match)
	return out
}

// Pattern returns the source text of the compiled pattern.
func (e *EventSubscriber) Pattern() string {
	return e.pattern.String()
}
