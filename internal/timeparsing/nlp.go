package timeparsing

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// nlpParser is the shared natural-language parser. when's rule sets are
// immutable after construction, so a single instance is safe to share.
var nlpParser = newNLPParser()

func newNLPParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage parses English time expressions ("tomorrow",
// "next monday", "2 days ago") relative to now. The whole input must be
// consumed; "foo tomorrow bar" is rejected rather than silently parsed.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	r, err := nlpParser.Parse(trimmed, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a natural language time: %q", s)
	}
	if len(strings.TrimSpace(r.Text)) != len(trimmed) {
		return time.Time{}, fmt.Errorf("unrecognized text in time expression %q", s)
	}
	return r.Time, nil
}

// absoluteLayouts are accepted absolute timestamp formats, most
// specific first.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseAbsolute parses an absolute timestamp (RFC3339 or date-only).
// Date-only values resolve to midnight local time.
func ParseAbsolute(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an absolute timestamp: %q", s)
}

// ParseRelativeTime resolves a time expression using the layered
// strategy: compact duration, then natural language, then absolute.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if IsCompactDuration(trimmed) {
		return ParseCompactDuration(trimmed, now)
	}
	if t, err := ParseNaturalLanguage(trimmed, now); err == nil {
		return t, nil
	}
	if t, err := ParseAbsolute(trimmed); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time expression %q (try +6h, -2d, \"yesterday\", or 2026-01-15)", s)
}
