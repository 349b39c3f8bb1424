// Package cli provides the command-line interface for logstream.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360/logstream/internal/cli/commands"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2 // Configuration or runtime error
	}
	return commands.ExitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "logstream",
		Short: "Watch a logcat stream for pattern events",
		Long: `Logstream reads an Android logcat line stream, parses it, and fans it
out to subscribers: pattern watchers that fire when a line matches,
a file sink for later excerpting, and an optional NATS forwarder.

Sources:
  - stdin (default), e.g. "adb logcat -v threadtime | logstream watch"
  - a spawned command (--command)
  - a tailed file that survives rotation (--file)
  - a websocket feed (--url)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewExcerptCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
