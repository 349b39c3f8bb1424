package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/c360/logstream/config"
	"github.com/c360/logstream/errors"
	"github.com/c360/logstream/logline"
	"github.com/c360/logstream/metric"
	"github.com/c360/logstream/pkg/retry"
	"github.com/c360/logstream/pubsub"
	"github.com/c360/logstream/sink"
	"github.com/c360/logstream/source"
)

// ExitCode carries the watch result out of cobra: 0 when all watchers
// fired (or the stream was simply followed), 1 when a watcher timed
// out or the stream ended before a match, 2 for errors.
var ExitCode int

// WatchOptions holds command-line options for the watch command.
type WatchOptions struct {
	ConfigPath string

	File      string
	FromStart bool
	Command   string
	Args      []string
	URL       string

	Pattern  string
	Tag      string
	MinLevel string
	Timeout  time.Duration

	Output      string
	MetricsAddr string
	Verbose     bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [flags] [-- command args...]",
		Short: "Stream logcat lines and wait for pattern events",
		Long: `Read a logcat stream and dispatch every parsed line to the configured
subscribers. With --pattern the command waits for the first matching
line, prints it, and exits; without it the stream is followed until it
ends or the process is interrupted.

Examples:
  adb logcat -v threadtime | logstream watch --pattern 'Boot completed'
  logstream watch --pattern 'metric_a=(\d+)' -- adb logcat -v threadtime
  logstream watch --file /var/log/device.log --output captured.log
  logstream watch --config logstream.yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Configuration file (YAML)")
	cmd.Flags().StringVar(&opts.File, "file", "", "Tail a log file instead of reading stdin")
	cmd.Flags().BoolVar(&opts.FromStart, "from-start", false, "Read existing file content before tailing")
	cmd.Flags().StringVar(&opts.URL, "url", "", "Read lines from a websocket endpoint")
	cmd.Flags().StringVarP(&opts.Pattern, "pattern", "p", "", "Wait for a line matching this regex, then exit")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "Only match lines with this exact tag")
	cmd.Flags().StringVar(&opts.MinLevel, "min-level", "", "Only match lines at or above this level (V, D, I, W, E, F)")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", config.DefaultWaitTimeout, "How long to wait for the pattern")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Append every line to this file")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Debug logging")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string, opts *WatchOptions) error {
	cfg, err := buildConfig(args, opts)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch(ctx, cfg, logger)
}

// buildConfig merges the config file, flags, and trailing command
// arguments into one validated configuration. Flags win over the
// file.
func buildConfig(args []string, opts *WatchOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	switch {
	case len(args) > 0:
		cfg.Source = config.SourceConfig{
			Type:    config.SourceCommand,
			Command: args[0],
			Args:    args[1:],
		}
	case opts.File != "":
		cfg.Source = config.SourceConfig{
			Type:      config.SourceFile,
			Path:      opts.File,
			FromStart: opts.FromStart,
			Poll:      config.DefaultPoll,
		}
	case opts.URL != "":
		cfg.Source = config.SourceConfig{
			Type: config.SourceWebSocket,
			URL:  opts.URL,
		}
	}

	if opts.Pattern != "" {
		cfg.Watchers = append(cfg.Watchers, config.WatcherConfig{
			Name:     "pattern",
			Pattern:  opts.Pattern,
			Tag:      opts.Tag,
			MinLevel: opts.MinLevel,
			Timeout:  opts.Timeout,
		})
	}
	if opts.Output != "" {
		cfg.Sinks.File = &config.FileSinkConfig{Path: opts.Output}
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func watch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	src, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}

	var parserOpts []logline.ParserOption
	if cfg.Parser.Year != 0 {
		parserOpts = append(parserOpts, logline.WithYear(cfg.Parser.Year))
	}
	if cfg.Parser.Location != "" {
		loc, locErr := time.LoadLocation(cfg.Parser.Location)
		if locErr != nil {
			return locErr
		}
		parserOpts = append(parserOpts, logline.WithLocation(loc))
	}

	registry := metric.NewRegistry()
	if cfg.Metrics.Addr != "" {
		server := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		go func() {
			if serveErr := server.Start(); serveErr != nil {
				logger.Warn("Metrics server stopped", "error", serveErr)
			}
		}()
		defer func() { _ = server.Stop() }()
	}

	pub := pubsub.NewPublisher(pubsub.PublisherDeps{
		Name:     cfg.Name,
		Source:   src,
		Parser:   logline.NewParser(parserOpts...),
		Logger:   logger,
		Registry: registry,
		Retry: retry.Config{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	})

	cleanup, err := attachSinks(pub, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Watchers are armed before Start so the first line can already
	// match.
	waiters, err := armWatchers(pub, cfg, logger)
	if err != nil {
		return err
	}

	if err := pub.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = pub.Stop(5 * time.Second) }()

	if len(waiters) > 0 {
		ExitCode = awaitWatchers(waiters)
		return nil
	}

	// No watchers: follow the stream until it ends or we are told to
	// stop.
	select {
	case <-pub.Done():
		if runErr := pub.Health().Err; runErr != nil {
			return runErr
		}
	case <-ctx.Done():
	}
	return nil
}

func buildSource(cfg *config.Config, logger *slog.Logger) (source.Source, error) {
	switch cfg.Source.Type {
	case config.SourceStdin:
		return source.NewReader("stdin", os.Stdin), nil
	case config.SourceFile:
		return source.NewFile(source.FileConfig{
			Path:         cfg.Source.Path,
			FromStart:    cfg.Source.FromStart,
			PollInterval: cfg.Source.Poll,
			Logger:       logger,
		}), nil
	case config.SourceCommand:
		return source.NewCommand(source.CommandConfig{
			Path:   cfg.Source.Command,
			Args:   cfg.Source.Args,
			Logger: logger,
		}), nil
	case config.SourceWebSocket:
		return source.NewWebSocket(source.WebSocketConfig{
			URL:    cfg.Source.URL,
			Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// attachSinks subscribes the configured sinks and returns a cleanup
// function that flushes and detaches them.
func attachSinks(pub *pubsub.Publisher, cfg *config.Config, logger *slog.Logger) (func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Sinks.File != nil {
		fileSink, err := sink.NewFileSink(sink.FileConfig{
			Path:   cfg.Sinks.File.Path,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		sub := pub.Subscribe(fileSink)
		cleanups = append(cleanups, func() {
			pub.Unsubscribe(sub)
			_ = fileSink.Close()
		})
	}

	if cfg.Sinks.NATS != nil {
		conn, err := nats.Connect(cfg.Sinks.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			cleanup()
			return nil, errors.WrapTransient(err, "watch", "attachSinks", "nats connect")
		}
		natsSink, err := sink.NewNATSSink(sink.NATSConfig{
			Conn:    conn,
			Subject: cfg.Sinks.NATS.Subject,
			Logger:  logger,
		})
		if err != nil {
			conn.Close()
			cleanup()
			return nil, err
		}
		sub := pub.Subscribe(natsSink)
		cleanups = append(cleanups, func() {
			pub.Unsubscribe(sub)
			natsSink.Close()
			if flushErr := conn.Flush(); flushErr != nil {
				logger.Warn("NATS flush on shutdown", "error", flushErr)
			}
			conn.Close()
		})
	}

	return cleanup, nil
}

type watcherResult struct {
	name string
	code int
}

// armWatchers subscribes every configured watcher and returns one
// result channel per watcher.
func armWatchers(pub *pubsub.Publisher, cfg *config.Config, logger *slog.Logger) ([]<-chan watcherResult, error) {
	var waiters []<-chan watcherResult

	for _, w := range cfg.Watchers {
		var evOpts []pubsub.EventOption
		if w.Tag != "" {
			evOpts = append(evOpts, pubsub.WithTag(w.Tag))
		}
		if w.MinLevel != "" {
			level, err := logline.ParseLevel(w.MinLevel)
			if err != nil {
				return nil, err
			}
			evOpts = append(evOpts, pubsub.WithMinLevel(level))
		}

		ev, cancel, err := pub.Event(w.Pattern, evOpts...)
		if err != nil {
			return nil, err
		}

		name := w.Name
		timeout := w.Timeout
		ch := make(chan watcherResult, 1)
		waiters = append(waiters, ch)

		go func() {
			defer cancel()
			err := ev.WaitTimeout(timeout)
			switch {
			case err == nil:
				trigger := ev.Trigger()
				logger.Info("Watcher fired",
					"watcher", name,
					"tag", trigger.Tag,
					"line", trigger.Raw,
					"groups", ev.Groups()[1:])
				fmt.Println(trigger.Raw)
				ch <- watcherResult{name: name, code: 0}
			case stderrors.Is(err, errors.ErrWaitTimeout):
				logger.Warn("Watcher timed out", "watcher", name, "timeout", timeout)
				ch <- watcherResult{name: name, code: 1}
			default:
				logger.Warn("Stream ended before match", "watcher", name, "error", err)
				ch <- watcherResult{name: name, code: 1}
			}
		}()
	}

	return waiters, nil
}

func awaitWatchers(waiters []<-chan watcherResult) int {
	code := 0
	for _, ch := range waiters {
		res := <-ch
		if res.code > code {
			code = res.code
		}
	}
	return code
}
