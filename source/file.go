package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/logstream/errors"
)

// FileConfig holds configuration for a tailed file source.
type FileConfig struct {
	// Path of the log file to tail.
	Path string
	// FromStart reads existing content before tailing; the default is
	// to seek to the end and only deliver new lines.
	FromStart bool
	// PollInterval is the fallback poll period for missed filesystem
	// events. Defaults to 500ms.
	PollInterval time.Duration
	// Logger for tail lifecycle events. Defaults to slog.Default.
	Logger *slog.Logger
}

// File tails a log file the way `tail -F` does: it follows appends via
// fsnotify with a polling fallback, survives truncation, and reopens
// the path after rotation.
type File struct {
	cfg FileConfig
}

// NewFile creates a tailing file source.
func NewFile(cfg FileConfig) *File {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "file-source")
	}
	return &File{cfg: cfg}
}

// Name identifies the source by its path.
func (s *File) Name() string {
	return fmt.Sprintf("file(%s)", s.cfg.Path)
}

// Open opens the file and begins watching its directory for changes.
func (s *File) Open(_ context.Context) (io.ReadCloser, error) {
	if s.cfg.Path == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty file path"), "File", "Open", "config validation")
	}

	abs, err := filepath.Abs(s.cfg.Path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "File", "Open", "path resolution")
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.WrapTransient(err, "File", "Open", "file open")
	}

	if !s.cfg.FromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return nil, errors.WrapTransient(err, "File", "Open", "seek to end")
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		return nil, errors.WrapTransient(err, "File", "Open", "watcher creation")
	}
	// Watch the directory, not the file, so rotation is visible.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		s.cfg.Logger.Warn("Could not watch directory, relying on polling",
			"dir", filepath.Dir(abs), "error", err)
	}

	return &tailReader{
		path:    abs,
		f:       f,
		watcher: watcher,
		poll:    s.cfg.PollInterval,
		logger:  s.cfg.Logger,
		done:    make(chan struct{}),
	}, nil
}

// tailReader blocks at EOF until the file grows, shrinks (truncation),
// or is replaced (rotation), instead of reporting EOF to the caller.
// EOF is only returned after Close.
type tailReader struct {
	path    string
	watcher *fsnotify.Watcher
	poll    time.Duration
	logger  *slog.Logger
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex // guards f and offset
	f      *os.File
	offset int64
}

func (t *tailReader) Read(p []byte) (int, error) {
	for {
		select {
		case <-t.done:
			return 0, io.EOF
		default:
		}

		t.mu.Lock()
		n, err := t.f.Read(p)
		t.offset += int64(n)
		t.mu.Unlock()

		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			select {
			case <-t.done:
				return 0, io.EOF
			default:
			}
			return 0, err
		}

		// At EOF: wait for the file to change, then retry.
		if err := t.waitForChange(); err != nil {
			return 0, err
		}
	}
}

// waitForChange blocks until a relevant filesystem event arrives, the
// poll interval elapses, or the reader is closed.
func (t *tailReader) waitForChange() error {
	timer := time.NewTimer(t.poll)
	defer timer.Stop()

	for {
		select {
		case <-t.done:
			return io.EOF

		case event, ok := <-t.watcher.Events:
			if !ok {
				return io.EOF
			}
			if event.Name != t.path {
				continue
			}
			t.checkFile()
			return nil

		case _, ok := <-t.watcher.Errors:
			if !ok {
				return io.EOF
			}
			// Watcher errors degrade to polling.
			return nil

		case <-timer.C:
			t.checkFile()
			return nil
		}
	}
}

// checkFile handles truncation and rotation before the next read.
func (t *tailReader) checkFile() {
	t.mu.Lock()
	defer t.mu.Unlock()

	stat, err := os.Stat(t.path)
	if err != nil {
		// File gone; rotation may still be in progress. Next poll retries.
		return
	}

	if cur, err := t.f.Stat(); err == nil && !os.SameFile(cur, stat) {
		// Rotated: a new file now lives at the path.
		if nf, err := os.Open(t.path); err == nil {
			_ = t.f.Close()
			t.f = nf
			t.offset = 0
			t.logger.Debug("Reopened rotated file", "path", t.path)
		}
		return
	}

	if stat.Size() < t.offset {
		// Truncated: restart from the beginning.
		if _, err := t.f.Seek(0, io.SeekStart); err == nil {
			t.offset = 0
			t.logger.Debug("File truncated, rereading", "path", t.path)
		}
	}
}

// Close stops tailing and unblocks any in-flight Read. Safe to call
// multiple times.
func (t *tailReader) Close() error {
	t.once.Do(func() {
		close(t.done)
		_ = t.watcher.Close()
		t.mu.Lock()
		_ = t.f.Close()
		t.mu.Unlock()
	})
	return nil
}
