// Package source provides the line-oriented byte streams a publisher
// reads from: wrapped readers, standing subprocesses, tailed files, and
// websocket feeds.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/c360/logstream/errors"
)

// Source supplies a line-oriented byte stream to a publisher.
//
// Open returns a reader the publisher owns for the lifetime of its read
// loop. Closing the reader must unblock any in-flight Read; the
// publisher relies on this for shutdown.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// Reader adapts an existing io.Reader (stdin, a pipe, a test buffer)
// into a Source. It is single-use: Open always hands back the same
// underlying reader.
type Reader struct {
	name string
	r    io.Reader
}

// NewReader wraps r as a Source with the given display name.
func NewReader(name string, r io.Reader) *Reader {
	return &Reader{name: name, r: r}
}

// Open returns the wrapped reader.
func (s *Reader) Open(_ context.Context) (io.ReadCloser, error) {
	if s.r == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("nil reader"), "Reader", "Open", "reader check")
	}
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}

// Name returns the display name given at construction.
func (s *Reader) Name() string {
	return s.name
}
