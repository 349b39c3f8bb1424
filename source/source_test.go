package source

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstream/errors"
)

func TestReader_Open(t *testing.T) {
	src := NewReader("stdin", strings.NewReader("line one\nline two\n"))
	assert.Equal(t, "stdin", src.Name())

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestReader_OpenNil(t *testing.T) {
	src := NewReader("empty", nil)
	_, err := src.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestReader_PassesThroughReadCloser(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("x"))
	src := NewReader("rc", rc)

	got, err := src.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, io.ReadCloser(rc), got)
}
