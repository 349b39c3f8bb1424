package source

import (
	"bufio"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstream/errors"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess tests use POSIX tools")
	}
}

func TestCommand_Open(t *testing.T) {
	requireUnix(t)

	src := NewCommand(CommandConfig{
		Path: "sh",
		Args: []string{"-c", "printf 'one\\ntwo\\n'"},
	})
	assert.Equal(t, "command(sh)", src.Name())

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestCommand_CloseKillsProcess(t *testing.T) {
	requireUnix(t)

	src := NewCommand(CommandConfig{
		Path: "sh",
		Args: []string{"-c", "echo started; sleep 60"},
	})

	rc, err := src.Open(context.Background())
	require.NoError(t, err)

	scanner := bufio.NewScanner(rc)
	require.True(t, scanner.Scan())
	assert.Equal(t, "started", scanner.Text())

	// Close must kill the subprocess and unblock the stream quickly.
	done := make(chan struct{})
	go func() {
		for scanner.Scan() {
		}
		close(done)
	}()

	require.NoError(t, rc.Close())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after Close")
	}

	// Idempotent.
	assert.NoError(t, rc.Close())
}

func TestCommand_OpenErrors(t *testing.T) {
	_, err := NewCommand(CommandConfig{}).Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewCommand(CommandConfig{Path: "/nonexistent/binary-xyz"}).Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestCommand_ContextCancelEndsStream(t *testing.T) {
	requireUnix(t)

	ctx, cancel := context.WithCancel(context.Background())
	src := NewCommand(CommandConfig{
		Path: "sh",
		Args: []string{"-c", "sleep 60"},
	})

	rc, err := src.Open(ctx)
	require.NoError(t, err)
	defer rc.Close()

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := rc.Read(buf); err != nil {
				close(done)
				return
			}
		}
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after context cancellation")
	}
}
