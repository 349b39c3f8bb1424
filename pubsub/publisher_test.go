package pubsub

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
	"github.com/c360/logstream/metric"
	"github.com/c360/logstream/source"
)

const (
	lineMetrics = "01-02 03:45:02.300  2000  2001 I Tag: metric_a=20 metric_b=80\n"
	lineFirst   = "01-02 03:45:01.000  1000  1001 I Boot: starting up\n"
	lineSecond  = "01-02 03:45:02.000  1000  1001 W Boot: slow init\n"
	lineThird   = "01-02 03:45:03.000  1000  1001 E Boot: init failed\n"
)

// newPipePublisher returns a started publisher fed by the returned
// pipe writer. Closing the writer ends the stream.
func newPipePublisher(t *testing.T) (*Publisher, *io.PipeWriter) {
	t.Helper()

	pr, pw := io.Pipe()
	pub := NewPublisher(PublisherDeps{
		Name:   "test",
		Source: source.NewReader("pipe", pr),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, pub.Start(context.Background()))

	t.Cleanup(func() {
		pw.Close()
		_ = pub.Stop(time.Second)
	})
	return pub, pw
}

// recorder collects every line it is handed.
type recorder struct {
	mu    sync.Mutex
	lines []logline.Line
	ends  int
}

func (r *recorder) Handle(line logline.Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) StreamEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends++
}

func (r *recorder) snapshot() []logline.Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]logline.Line, len(r.lines))
	copy(out, r.lines)
	return out
}

func (r *recorder) endCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ends
}

func TestPublisher_DispatchInOrder(t *testing.T) {
	pub, pw := newPipePublisher(t)

	rec := &recorder{}
	pub.Subscribe(rec)

	_, err := pw.Write([]byte(lineFirst + lineSecond + lineThird))
	require.NoError(t, err)
	pw.Close()

	select {
	case <-pub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}

	lines := rec.snapshot()
	require.Len(t, lines, 3)
	assert.Equal(t, "starting up", lines[0].Message)
	assert.Equal(t, "slow init", lines[1].Message)
	assert.Equal(t, "init failed", lines[2].Message)
	assert.Equal(t, logline.LevelWarning, lines[1].Level)
}

func TestPublisher_SubscriberOrderStable(t *testing.T) {
	pub, pw := newPipePublisher(t)

	var mu sync.Mutex
	var order []string
	pub.Subscribe(SubscriberFunc(func(line logline.Line) {
		mu.Lock()
		order = append(order, "a:"+line.Message)
		mu.Unlock()
	}))
	pub.Subscribe(SubscriberFunc(func(line logline.Line) {
		mu.Lock()
		order = append(order, "b:"+line.Message)
		mu.Unlock()
	}))

	_, err := pw.Write([]byte(lineFirst + lineSecond))
	require.NoError(t, err)
	pw.Close()
	<-pub.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"a:starting up", "b:starting up",
		"a:slow init", "b:slow init",
	}, order)
}

func TestPublisher_ParseFailureDropped(t *testing.T) {
	pub, pw := newPipePublisher(t)

	rec := &recorder{}
	pub.Subscribe(rec)

	_, err := pw.Write([]byte("not a logcat line\n" + lineFirst))
	require.NoError(t, err)
	pw.Close()
	<-pub.Done()

	require.Len(t, rec.snapshot(), 1)
	h := pub.Health()
	assert.Equal(t, int64(2), h.LinesReceived)
	assert.Equal(t, int64(1), h.LinesPublished)
	assert.Equal(t, int64(1), h.ParseErrors)
}

func TestPublisher_StartIdempotent(t *testing.T) {
	pub, pw := newPipePublisher(t)
	defer pw.Close()

	assert.NoError(t, pub.Start(context.Background()))
	assert.True(t, pub.Running())
}

func TestPublisher_StartWithoutSource(t *testing.T) {
	pub := NewPublisher(PublisherDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	err := pub.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestPublisher_StopBeforeStart(t *testing.T) {
	pub := NewPublisher(PublisherDeps{
		Source: source.NewReader("empty", strings.NewReader("")),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	assert.NoError(t, pub.Stop(time.Second))
}

func TestPublisher_StopTwice(t *testing.T) {
	pub, pw := newPipePublisher(t)
	defer pw.Close()

	require.NoError(t, pub.Stop(time.Second))
	assert.NoError(t, pub.Stop(time.Second))
	assert.False(t, pub.Running())
}

func TestPublisher_StopReleasesWaiters(t *testing.T) {
	pub, pw := newPipePublisher(t)
	defer pw.Close()

	ev, cancel, err := pub.Event(`never`)
	require.NoError(t, err)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ev.Wait(context.Background())
	}()

	require.NoError(t, pub.Stop(time.Second))

	select {
	case werr := <-errCh:
		assert.ErrorIs(t, werr, errors.ErrStreamEnded)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by Stop")
	}
}

func TestPublisher_StreamEndNotifiesSubscribers(t *testing.T) {
	pub, pw := newPipePublisher(t)

	rec := &recorder{}
	pub.Subscribe(rec)

	pw.Close()
	<-pub.Done()

	assert.Equal(t, 1, rec.endCount())
	assert.False(t, pub.Running())
}

func TestPublisher_LateSubscriberSeesStreamEnd(t *testing.T) {
	pub, pw := newPipePublisher(t)

	pw.Close()
	<-pub.Done()

	ev, cancel, err := pub.Event(`never`)
	require.NoError(t, err)
	defer cancel()

	start := time.Now()
	err = ev.Wait(context.Background())
	assert.ErrorIs(t, err, errors.ErrStreamEnded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublisher_Unsubscribe(t *testing.T) {
	pub, pw := newPipePublisher(t)

	first := &recorder{}
	keeper := &recorder{}
	sub := pub.Subscribe(first)
	pub.Subscribe(keeper)

	_, err := pw.Write([]byte(lineFirst))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(keeper.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	pub.Unsubscribe(sub)

	_, err = pw.Write([]byte(lineSecond))
	require.NoError(t, err)
	pw.Close()
	<-pub.Done()

	assert.Len(t, first.snapshot(), 1)
	assert.Len(t, keeper.snapshot(), 2)
}

func TestPublisher_UnsubscribeUnknown(t *testing.T) {
	pub, pw := newPipePublisher(t)
	defer pw.Close()

	pub.Unsubscribe(Subscription{})
	pub.Subscribe(&recorder{})
	pub.Unsubscribe(Subscription{})

	assert.Equal(t, 1, pub.Health().Subscribers)
}

func TestPublisher_EventCaptureGroups(t *testing.T) {
	pub, pw := newPipePublisher(t)

	ev, cancel, err := pub.Event(`metric_a=(\d+) metric_b=(\d+)`)
	require.NoError(t, err)
	defer cancel()

	_, err = pw.Write([]byte(lineMetrics))
	require.NoError(t, err)

	require.NoError(t, ev.WaitTimeout(2*time.Second))

	groups := ev.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, "20", groups[1])
	assert.Equal(t, "80", groups[2])

	trigger := ev.Trigger()
	assert.Equal(t, "Tag", trigger.Tag)
	assert.Equal(t, 2000, trigger.PID)
	assert.Equal(t, logline.LevelInfo, trigger.Level)
}

func TestPublisher_EventSubscribedBeforeReturn(t *testing.T) {
	pub, pw := newPipePublisher(t)

	ev, cancel, err := pub.Event(`starting up`, WithTag("Boot"))
	require.NoError(t, err)
	defer cancel()

	// The subscription already exists, so a line arriving right
	// after arming cannot be missed.
	_, err = pw.Write([]byte(lineFirst))
	require.NoError(t, err)

	assert.NoError(t, ev.WaitTimeout(2*time.Second))
}

func TestPublisher_EventInvalidPattern(t *testing.T) {
	pub, pw := newPipePublisher(t)
	defer pw.Close()

	ev, cancel, err := pub.Event(`(unclosed`)
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.Nil(t, cancel)
	assert.Equal(t, 0, pub.Health().Subscribers)
}

func TestPublisher_EventCancelIdempotent(t *testing.T) {
	pub, pw := newPipePublisher(t)
	defer pw.Close()

	_, cancel, err := pub.Event(`never`)
	require.NoError(t, err)

	assert.Equal(t, 1, pub.Health().Subscribers)
	cancel()
	cancel()
	assert.Equal(t, 0, pub.Health().Subscribers)
}

func TestPublisher_ContextCancelEndsStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	pub := NewPublisher(PublisherDeps{
		Name:   "test",
		Source: source.NewReader("pipe", pr),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pub.Start(ctx))

	cancel()

	select {
	case <-pub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context cancel did not end the stream")
	}
	assert.False(t, pub.Running())
}

func TestPublisher_Health(t *testing.T) {
	pub, pw := newPipePublisher(t)

	rec := &recorder{}
	pub.Subscribe(rec)

	_, err := pw.Write([]byte(lineFirst))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return pub.Health().LinesPublished == 1
	}, 2*time.Second, 10*time.Millisecond)

	h := pub.Health()
	assert.True(t, h.Running)
	assert.Equal(t, int64(1), h.LinesReceived)
	assert.Equal(t, 1, h.Subscribers)
	assert.False(t, h.LastActivity.IsZero())
	assert.Greater(t, h.Uptime, time.Duration(0))
	assert.NoError(t, h.Err)
}

func TestPublisher_WithMetrics(t *testing.T) {
	registry := metric.NewRegistry()
	pr, pw := io.Pipe()

	pub := NewPublisher(PublisherDeps{
		Name:     "metered",
		Source:   source.NewReader("pipe", pr),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: registry,
	})
	require.NoError(t, pub.Start(context.Background()))

	ev, cancel, err := pub.Event(`metric_a=(\d+)`)
	require.NoError(t, err)
	defer cancel()

	_, err = pw.Write([]byte(lineMetrics))
	require.NoError(t, err)
	require.NoError(t, ev.WaitTimeout(2*time.Second))

	pw.Close()
	require.NoError(t, pub.Stop(time.Second))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["logstream_lines_received_total"])
	assert.True(t, names["logstream_events_fired_total"])
}
