package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
)

func testLine(tag string, level logline.Level, message string) logline.Line {
	return logline.Line{
		Time:    time.Date(2026, 1, 2, 3, 45, 2, 300000000, time.Local),
		PID:     2000,
		TID:     2001,
		Level:   level,
		Tag:     tag,
		Message: message,
	}
}

func TestNewEvent_InvalidPattern(t *testing.T) {
	ev, err := NewEvent(`metric_a=(\d+`)
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidPattern)
}

func TestNewEvent_InvalidLevel(t *testing.T) {
	ev, err := NewEvent(`.*`, WithMinLevel(logline.Level('X')))
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, errors.ErrInvalidLevel)
}

func TestEvent_FirstMatchWins(t *testing.T) {
	ev, err := NewEvent(`value=(\d+)`)
	require.NoError(t, err)

	ev.Handle(testLine("Tag", logline.LevelInfo, "value=1"))
	ev.Handle(testLine("Tag", logline.LevelInfo, "value=2"))

	require.True(t, ev.Fired())
	assert.Equal(t, []string{"value=1", "1"}, ev.Groups())
	assert.Equal(t, "value=1", ev.Trigger().Message)
}

func TestEvent_TagFilter(t *testing.T) {
	ev, err := NewEvent(`ready`, WithTag("Boot"))
	require.NoError(t, err)

	ev.Handle(testLine("Other", logline.LevelInfo, "ready"))
	assert.False(t, ev.Fired())

	ev.Handle(testLine("Boot", logline.LevelInfo, "ready"))
	assert.True(t, ev.Fired())
	assert.Equal(t, "Boot", ev.Trigger().Tag)
}

func TestEvent_MinLevelFilter(t *testing.T) {
	ev, err := NewEvent(`failed`, WithMinLevel(logline.LevelWarning))
	require.NoError(t, err)

	ev.Handle(testLine("Tag", logline.LevelDebug, "failed"))
	ev.Handle(testLine("Tag", logline.LevelInfo, "failed"))
	assert.False(t, ev.Fired())

	ev.Handle(testLine("Tag", logline.LevelError, "failed"))
	assert.True(t, ev.Fired())
	assert.Equal(t, logline.LevelError, ev.Trigger().Level)
}

func TestEvent_NoMatchBeforeFire(t *testing.T) {
	ev, err := NewEvent(`never`)
	require.NoError(t, err)

	assert.False(t, ev.Fired())
	assert.Nil(t, ev.Groups())
	assert.Equal(t, logline.Line{}, ev.Trigger())
}

func TestEvent_WaitTimeout(t *testing.T) {
	ev, err := NewEvent(`never`)
	require.NoError(t, err)

	start := time.Now()
	err = ev.WaitTimeout(100 * time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, errors.ErrWaitTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestEvent_WaitReturnsOnFire(t *testing.T) {
	ev, err := NewEvent(`done`)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ev.Handle(testLine("Tag", logline.LevelInfo, "done"))
	}()

	require.NoError(t, ev.WaitTimeout(2*time.Second))
	assert.True(t, ev.Fired())
}

func TestEvent_StreamEndedReleasesWait(t *testing.T) {
	ev, err := NewEvent(`never`)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ev.StreamEnded()
	}()

	err = ev.WaitTimeout(2 * time.Second)
	assert.ErrorIs(t, err, errors.ErrStreamEnded)
}

func TestEvent_FiredBeatsStreamEnd(t *testing.T) {
	ev, err := NewEvent(`done`)
	require.NoError(t, err)

	ev.Handle(testLine("Tag", logline.LevelInfo, "done"))
	ev.StreamEnded()

	assert.NoError(t, ev.Wait(context.Background()))
	assert.NoError(t, ev.WaitTimeout(10*time.Millisecond))
}

func TestEvent_WaitContextCancel(t *testing.T) {
	ev, err := NewEvent(`never`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, ev.Wait(ctx), context.Canceled)
}

func TestEvent_StreamEndedIdempotent(t *testing.T) {
	ev, err := NewEvent(`never`)
	require.NoError(t, err)

	ev.StreamEnded()
	ev.StreamEnded()

	assert.ErrorIs(t, ev.Wait(context.Background()), errors.ErrStreamEnded)
}

func TestEvent_Done(t *testing.T) {
	ev, err := NewEvent(`done`)
	require.NoError(t, err)

	select {
	case <-ev.Done():
		t.Fatal("done channel closed before fire")
	default:
	}

	ev.Handle(testLine("Tag", logline.LevelInfo, "done"))

	select {
	case <-ev.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after fire")
	}
}
