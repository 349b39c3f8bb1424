// Logstream - logcat event subscription tool
//
// Logstream reads an Android logcat line stream, parses it, and fans it
// out to pattern watchers and sinks.
package main

import (
	"os"

	"github.com/c360/logstream/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
