package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/c360/logstream/errors"
)

// CommandConfig holds configuration for a subprocess source.
type CommandConfig struct {
	// Path is the binary to run, e.g. "adb".
	Path string
	// Args are passed verbatim, e.g. ["-s", serial, "logcat", "-v", "threadtime"].
	Args []string
	// Logger for subprocess lifecycle events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Command runs a standing subprocess and streams its stdout. The
// canonical use is `adb logcat`, but any long-running line producer
// works. When the process exits on its own the stream ends with EOF.
type Command struct {
	cfg CommandConfig
}

// NewCommand creates a subprocess source.
func NewCommand(cfg CommandConfig) *Command {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "command-source")
	}
	return &Command{cfg: cfg}
}

// Name identifies the source by its binary.
func (c *Command) Name() string {
	return fmt.Sprintf("command(%s)", c.cfg.Path)
}

// Open starts the subprocess and returns its stdout. Closing the
// returned reader kills the process and reaps it.
func (c *Command) Open(ctx context.Context) (io.ReadCloser, error) {
	if c.cfg.Path == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty command path"), "Command", "Open", "config validation")
	}

	cmd := exec.CommandContext(ctx, c.cfg.Path, c.cfg.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WrapTransient(err, "Command", "Open", "stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.WrapTransient(err, "Command", "Open", "process start")
	}
	c.cfg.Logger.Debug("Started subprocess", "path", c.cfg.Path, "pid", cmd.Process.Pid)

	return &commandReader{
		stdout: stdout,
		cmd:    cmd,
		logger: c.cfg.Logger,
	}, nil
}

type commandReader struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	logger *slog.Logger
	once   sync.Once
}

func (r *commandReader) Read(p []byte) (int, error) {
	return r.stdout.Read(p)
}

// Close kills the subprocess and waits for it. Safe to call multiple
// times and concurrently with Read.
func (r *commandReader) Close() error {
	r.once.Do(func() {
		_ = r.stdout.Close()
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		// Reap; exit status is expected to be non-zero after Kill.
		if err := r.cmd.Wait(); err != nil {
			r.logger.Debug("Subprocess exited", "error", err)
		}
	})
	return nil
}
