package sink

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
)

const defaultFileBuffer = 32 * 1024

// FileConfig configures a FileSink.
type FileConfig struct {
	// Path of the log file. Created if missing, appended otherwise.
	Path string

	// Parser used to recover timestamps when excerpting. Defaults to
	// a parser with the current year and local time zone.
	Parser *logline.Parser

	Logger *slog.Logger
}

// FileSink subscribes to a publisher and appends every line's raw
// text to a file, one line per record. It buffers writes and flushes
// when the stream ends.
type FileSink struct {
	path   string
	parser *logline.Parser
	logger *slog.Logger

	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
	lines  int64
}

// NewFileSink opens (or creates) the file at cfg.Path for appending.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty path"), "FileSink", "NewFileSink", "config validation")
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapTransient(err, "FileSink", "NewFileSink", "file open")
	}

	parser := cfg.Parser
	if parser == nil {
		parser = logline.NewParser()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FileSink{
		path:   cfg.Path,
		parser: parser,
		logger: logger.With("component", "filesink", "path", cfg.Path),
		f:      f,
		w:      bufio.NewWriterSize(f, defaultFileBuffer),
	}, nil
}

// Handle implements pubsub.Subscriber by appending the raw line.
func (s *FileSink) Handle(line logline.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.w.WriteString(line.Raw); err != nil {
		s.logger.Warn("Write failed", "error", err)
		return
	}
	if err := s.w.WriteByte('\n'); err != nil {
		s.logger.Warn("Write failed", "error", err)
		return
	}
	s.lines++
}

// StreamEnded implements pubsub.StreamEndObserver by flushing
// buffered output so the file is complete once the stream is.
func (s *FileSink) StreamEnded() {
	if err := s.Flush(); err != nil {
		s.logger.Warn("Flush at stream end failed", "error", err)
	}
}

// Flush forces buffered lines to disk.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	if err := s.w.Flush(); err != nil {
		return errors.WrapTransient(err, "FileSink", "Flush", "buffer flush")
	}
	return nil
}

// Close flushes and closes the file. Further lines are discarded.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if flushErr != nil {
		return errors.WrapTransient(flushErr, "FileSink", "Close", "buffer flush")
	}
	if closeErr != nil {
		return errors.WrapTransient(closeErr, "FileSink", "Close", "file close")
	}
	return nil
}

// Path returns the sink's file path.
func (s *FileSink) Path() string {
	return s.path
}

// Lines returns how many lines have been written so far.
func (s *FileSink) Lines() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Excerpt writes to w every stored line whose timestamp falls within
// [begin, end]. Lines without a parseable timestamp are skipped. The
// scan stops at the first in-range line that falls past end, since
// the file is in stream order.
func (s *FileSink) Excerpt(w io.Writer, begin, end time.Time) error {
	if err := s.Flush(); err != nil && err != errors.ErrSinkClosed {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return errors.WrapTransient(err, "FileSink", "Excerpt", "file open")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, defaultFileBuffer), 1024*1024)
	inRange := false
	for scanner.Scan() {
		raw := scanner.Text()
		ts, ok := s.parser.Timestamp(raw)
		if !ok {
			continue
		}
		if ts.After(end) {
			if inRange {
				break
			}
			continue
		}
		if ts.Before(begin) {
			continue
		}
		inRange = true
		if _, err := fmt.Fprintln(w, raw); err != nil {
			return errors.WrapTransient(err, "FileSink", "Excerpt", "excerpt write")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.WrapTransient(err, "FileSink", "Excerpt", "file scan")
	}
	return nil
}
