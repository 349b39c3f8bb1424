// Package logline defines the parsed log record shared by publishers,
// subscribers, and sinks, plus the parser that produces it from raw
// threadtime-formatted text.
package logline

import (
	"fmt"
	"time"

	"github.com/c360/logstream/errors"
)

// Level is a single-letter log level from the threadtime format.
type Level byte

// Log levels in ascending severity order.
const (
	LevelVerbose Level = 'V'
	LevelDebug   Level = 'D'
	LevelInfo    Level = 'I'
	LevelWarning Level = 'W'
	LevelError   Level = 'E'
	LevelFatal   Level = 'F'
	LevelSilent  Level = 'S'
)

// levelOrder maps each level letter to its severity rank.
const levelOrder = "VDIWEFS"

// ParseLevel converts a one-letter level string to a Level.
func ParseLevel(s string) (Level, error) {
	if len(s) != 1 {
		return 0, errors.WrapInvalid(
			fmt.Errorf("level must be a single letter, got %q", s),
			"Level", "ParseLevel", "length check")
	}
	l := Level(s[0])
	if !l.Valid() {
		return 0, errors.WrapInvalid(
			fmt.Errorf("unknown level %q", s),
			"Level", "ParseLevel", "level lookup")
	}
	return l, nil
}

// Valid reports whether the level is one of the known level letters.
func (l Level) Valid() bool {
	for i := 0; i < len(levelOrder); i++ {
		if byte(l) == levelOrder[i] {
			return true
		}
	}
	return false
}

// Rank returns the severity rank of the level, from 0 (verbose) to 6 (silent).
// Unknown levels rank below verbose.
func (l Level) Rank() int {
	for i := 0; i < len(levelOrder); i++ {
		if byte(l) == levelOrder[i] {
			return i
		}
	}
	return -1
}

// AtLeast reports whether the level is at or above the given threshold.
func (l Level) AtLeast(min Level) bool {
	return l.Rank() >= min.Rank()
}

func (l Level) String() string {
	if !l.Valid() {
		return "?"
	}
	return string(byte(l))
}

// MarshalText implements encoding.TextMarshaler so levels serialize as
// their letter rather than a byte value.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Line is one parsed log record. Value semantics keep it immutable to
// subscribers; the publisher constructs it once per raw line.
type Line struct {
	Time     time.Time `json:"time"`
	PID      int       `json:"pid"`
	TID      int       `json:"tid"`
	Level    Level     `json:"level"`
	Tag      string    `json:"tag"`
	Message  string    `json:"message"`
	HostTime time.Time `json:"host_time"`
	Raw      string    `json:"raw"`
}
