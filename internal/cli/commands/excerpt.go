package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/logstream/logline"
	"github.com/c360/logstream/sink"
)

// ExcerptOptions holds command-line options for the excerpt command.
type ExcerptOptions struct {
	Begin string
	End   string
	Year  int
}

// NewExcerptCommand creates the excerpt command.
func NewExcerptCommand() *cobra.Command {
	opts := &ExcerptOptions{}

	cmd := &cobra.Command{
		Use:   "excerpt <log-file>",
		Short: "Print the lines of a captured log within a time range",
		Long: `Print every line of a file captured with "watch --output" whose
timestamp falls within [--begin, --end]. Timestamps use the logcat
layout "01-02 15:04:05.000"; lines without one (stack traces,
continuations) are skipped.

Example:
  logstream excerpt --begin "01-02 03:45:00.000" --end "01-02 03:46:00.000" adb.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExcerpt(args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Begin, "begin", "", "Start of the range (inclusive)")
	cmd.Flags().StringVar(&opts.End, "end", "", "End of the range (inclusive)")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "Year the timestamps belong to (default: current)")
	_ = cmd.MarkFlagRequired("begin")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runExcerpt(path string, opts *ExcerptOptions) error {
	year := opts.Year
	if year == 0 {
		year = time.Now().Year()
	}
	parser := logline.NewParser(logline.WithYear(year))

	begin, ok := parser.Timestamp(opts.Begin)
	if !ok {
		return fmt.Errorf("invalid --begin %q (want %q)", opts.Begin, logline.TimestampLayout)
	}
	end, ok := parser.Timestamp(opts.End)
	if !ok {
		return fmt.Errorf("invalid --end %q (want %q)", opts.End, logline.TimestampLayout)
	}
	if end.Before(begin) {
		return fmt.Errorf("--end precedes --begin")
	}

	fileSink, err := sink.NewFileSink(sink.FileConfig{Path: path, Parser: parser})
	if err != nil {
		return err
	}
	defer func() { _ = fileSink.Close() }()

	return fileSink.Excerpt(os.Stdout, begin, end)
}
