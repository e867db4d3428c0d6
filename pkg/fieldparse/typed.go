package fieldparse

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// Default layouts used when no DateFormat is configured.
var (
	dateLayouts     = []string{"2006-01-02"}
	dateTimeLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", time.RFC3339}
	timeLayouts     = []string{"15:04:05", "15:04"}
)

// ParseInt parses a base-10 integer.
func ParseInt(content []byte) (int64, bool) {
	if len(content) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(cometstrings.BytesToString(content), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseFloat parses a float, honoring a non-default decimal byte.
func ParseFloat(content []byte, decimal byte) (float64, bool) {
	if len(content) == 0 {
		return 0, false
	}
	s := cometstrings.BytesToString(content)
	if decimal != 0 && decimal != '.' {
		if bytes.IndexByte(content, '.') >= 0 {
			return 0, false
		}
		s = strings.ReplaceAll(s, string(decimal), ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseBool matches content against the configured true and false string sets.
func ParseBool(content []byte, opts *Options) (bool, bool) {
	for _, t := range opts.TrueStrings {
		if bytes.Equal(content, t) {
			return true, true
		}
	}
	for _, f := range opts.FalseStrings {
		if bytes.Equal(content, f) {
			return false, true
		}
	}
	return false, false
}

// ParseDate parses a calendar date and returns days since the Unix epoch.
func ParseDate(content []byte, opts *Options) (int64, bool) {
	layouts := dateLayouts
	if opts.DateFormat != "" {
		layouts = []string{opts.DateFormat}
	}
	t, ok := parseLayouts(content, layouts)
	if !ok {
		return 0, false
	}
	return epochDays(t), true
}

// ParseDateTime parses a timestamp and returns microseconds since the Unix
// epoch.
func ParseDateTime(content []byte, opts *Options) (int64, bool) {
	layouts := dateTimeLayouts
	if opts.DateFormat != "" {
		layouts = []string{opts.DateFormat}
	}
	t, ok := parseLayouts(content, layouts)
	if !ok {
		return 0, false
	}
	return t.UnixMicro(), true
}

// ParseTime parses a time of day and returns nanoseconds since midnight.
func ParseTime(content []byte, opts *Options) (int64, bool) {
	layouts := timeLayouts
	if opts.DateFormat != "" {
		layouts = []string{opts.DateFormat}
	}
	t, ok := parseLayouts(content, layouts)
	if !ok {
		return 0, false
	}
	ns := int64(t.Hour())*3600*1e9 + int64(t.Minute())*60*1e9 + int64(t.Second())*1e9 + int64(t.Nanosecond())
	return ns, true
}

func parseLayouts(content []byte, layouts []string) (time.Time, bool) {
	s := cometstrings.BytesToString(content)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func epochDays(t time.Time) int64 {
	secs := t.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	return days
}

// DateFormatKind classifies a reference layout by what it carries: both date
// and clock components yield DateTime, clock only yields Time, otherwise
// Date.
func DateFormatKind(layout string) tape.TypeCode {
	hasDate := strings.Contains(layout, "2006")
	hasClock := strings.Contains(layout, "15") || strings.Contains(layout, "04")
	switch {
	case hasDate && hasClock:
		return tape.DateTime
	case hasClock:
		return tape.Time
	default:
		return tape.Date
	}
}

// Parse scans one field at pos and converts its content to kind. StatusOK is
// set only when the conversion succeeds; sentinel and invalid-quote outcomes
// short-circuit without conversion. String always succeeds.
func Parse(kind tape.TypeCode, buf []byte, pos int, opts *Options) Result {
	res := Scan(buf, pos, opts)
	if res.Status.Has(StatusInvalidQuoted) || res.Status.Has(StatusSentinel) {
		return res
	}

	content := buf[res.Pos : res.Pos+res.Len]
	var builder *cometstrings.Builder
	if res.Status.Has(StatusEscape) {
		builder = Unescape(content, opts.Escape)
		content = builder.Bytes()
		defer cometstrings.PutBuilder(builder)
	}

	switch kind.Base() {
	case tape.Int:
		if v, ok := ParseInt(content); ok {
			res.Int = v
			res.Status |= StatusOK
		}
	case tape.Float:
		if v, ok := ParseFloat(content, opts.Decimal); ok {
			res.Float = v
			res.Status |= StatusOK
		}
	case tape.Date:
		if v, ok := ParseDate(content, opts); ok {
			res.Int = v
			res.Status |= StatusOK
		}
	case tape.DateTime:
		if v, ok := ParseDateTime(content, opts); ok {
			res.Int = v
			res.Status |= StatusOK
		}
	case tape.Time:
		if v, ok := ParseTime(content, opts); ok {
			res.Int = v
			res.Status |= StatusOK
		}
	case tape.Bool:
		if v, ok := ParseBool(content, opts); ok {
			res.Bool = v
			res.Status |= StatusOK
		}
	case tape.String, tape.Pool:
		res.Status |= StatusOK
	}
	return res
}
