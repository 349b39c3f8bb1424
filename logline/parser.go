package logline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360/logstream/errors"
)

// TimestampLayout is the year-less timestamp layout used by the
// threadtime format.
const TimestampLayout = "01-02 15:04:05.000"

// lineRegex tokenizes one threadtime line:
// "MM-DD HH:MM:SS.mmm  PID  TID LEVEL Tag: message"
var lineRegex = regexp.MustCompile(
	`^(?P<time>\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3})\s+` +
		`(?P<pid>\d+)\s+(?P<tid>\d+)\s+(?P<level>[VDIWEFS])\s+` +
		`(?P<tag>.+?)\s*:\s+(?P<message>.*)$`)

var (
	timeIdx    = lineRegex.SubexpIndex("time")
	pidIdx     = lineRegex.SubexpIndex("pid")
	tidIdx     = lineRegex.SubexpIndex("tid")
	levelIdx   = lineRegex.SubexpIndex("level")
	tagIdx     = lineRegex.SubexpIndex("tag")
	messageIdx = lineRegex.SubexpIndex("message")
)

// Parser converts raw threadtime lines into Line records. The format
// carries no year, so timestamps are resolved against a reference year.
type Parser struct {
	year int
	loc  *time.Location
	now  func() time.Time
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithYear sets the reference year applied to parsed timestamps.
// Defaults to the current year at construction.
func WithYear(year int) ParserOption {
	return func(p *Parser) { p.year = year }
}

// WithLocation sets the location used for parsed timestamps.
// Defaults to time.Local.
func WithLocation(loc *time.Location) ParserOption {
	return func(p *Parser) { p.loc = loc }
}

// withClock overrides the host-time clock. Test hook.
func withClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.now = now }
}

// NewParser creates a threadtime parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		year: time.Now().Year(),
		loc:  time.Local,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse tokenizes one raw line. Lines that do not match the threadtime
// format return an error wrapping errors.ErrParsingFailed; callers are
// expected to count and drop them.
func (p *Parser) Parse(raw string) (Line, error) {
	m := lineRegex.FindStringSubmatch(strings.TrimRight(raw, "\r\n"))
	if m == nil {
		return Line{}, errors.WrapInvalid(errors.ErrParsingFailed,
			"Parser", "Parse", "line tokenization")
	}

	ts, err := time.ParseInLocation(TimestampLayout, m[timeIdx], p.loc)
	if err != nil {
		return Line{}, errors.WrapInvalid(err, "Parser", "Parse", "timestamp parsing")
	}
	ts = ts.AddDate(p.year, 0, 0)

	// The regex guarantees digits, so these cannot fail.
	pid, _ := strconv.Atoi(m[pidIdx])
	tid, _ := strconv.Atoi(m[tidIdx])

	return Line{
		Time:     ts,
		PID:      pid,
		TID:      tid,
		Level:    Level(m[levelIdx][0]),
		Tag:      m[tagIdx],
		Message:  strings.TrimSpace(m[messageIdx]),
		HostTime: p.now(),
		Raw:      raw,
	}, nil
}

// Timestamp extracts just the timestamp from a raw line without a full
// parse. Used by sinks when filtering persisted lines by time range.
func (p *Parser) Timestamp(raw string) (time.Time, bool) {
	if len(raw) < len(TimestampLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw[:len(TimestampLayout)], p.loc)
	if err != nil {
		return time.Time{}, false
	}
	return ts.AddDate(p.year, 0, 0), true
}
