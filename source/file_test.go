package source

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstream/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// readLines pumps scanner lines into a channel so tests can use timeouts.
func readLines(rc *bufio.Scanner) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for rc.Scan() {
			out <- rc.Text()
		}
	}()
	return out
}

func expectLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	select {
	case got, ok := <-lines:
		require.True(t, ok, "stream ended while waiting for %q", want)
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for line %q", want)
	}
}

func TestFile_FromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "first\nsecond\n")

	src := NewFile(FileConfig{Path: path, FromStart: true, PollInterval: 20 * time.Millisecond})
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	lines := readLines(bufio.NewScanner(rc))
	expectLine(t, lines, "first")
	expectLine(t, lines, "second")
}

func TestFile_TailNewData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "before\n")

	src := NewFile(FileConfig{Path: path, PollInterval: 20 * time.Millisecond})
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	lines := readLines(bufio.NewScanner(rc))

	// Default mode skips existing content; a later append is delivered.
	appendFile(t, path, "after\n")
	expectLine(t, lines, "after")
}

func TestFile_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "old\n")

	src := NewFile(FileConfig{Path: path, FromStart: true, PollInterval: 20 * time.Millisecond})
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	lines := readLines(bufio.NewScanner(rc))
	expectLine(t, lines, "old")

	// Truncate and rewrite; the tail restarts from the beginning.
	writeFile(t, path, "fresh\n")
	expectLine(t, lines, "fresh")
}

func TestFile_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "first\n")

	src := NewFile(FileConfig{Path: path, FromStart: true, PollInterval: 20 * time.Millisecond})
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	lines := readLines(bufio.NewScanner(rc))
	expectLine(t, lines, "first")

	// Rotate: move the file away and create a new one at the path.
	require.NoError(t, os.Rename(path, filepath.Join(dir, "app.log.1")))
	writeFile(t, path, "rotated\n")
	expectLine(t, lines, "rotated")
}

func TestFile_CloseUnblocksRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")

	src := NewFile(FileConfig{Path: path, PollInterval: 20 * time.Millisecond})
	rc, err := src.Open(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		_, err := rc.Read(buf)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rc.Close())

	select {
	case err := <-done:
		assert.Error(t, err, "blocked Read should end with EOF after Close")
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not unblock after Close")
	}

	assert.NoError(t, rc.Close(), "Close is idempotent")
}

func TestFile_OpenErrors(t *testing.T) {
	_, err := NewFile(FileConfig{}).Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewFile(FileConfig{Path: "/nonexistent/nope.log"}).Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "missing file should be retryable")
}
