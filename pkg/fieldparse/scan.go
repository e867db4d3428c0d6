// Package fieldparse scans and types single fields out of a delimited-text
// buffer. The scanner handles quoting, escapes, whitespace trimming, sentinel
// matching, and multi-byte delimiters; the typed parsers turn field content
// into int64, float64, date, datetime, time, and bool encodings.
package fieldparse

import (
	"bytes"

	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
)

// Status is a bitset of field scan and parse outcomes.
type Status uint8

const (
	// StatusOK means the field parsed as the requested type
	StatusOK Status = 1 << 0
	// StatusSentinel means the field content matched a missing sentinel
	StatusSentinel Status = 1 << 1
	// StatusInvalidQuoted means a quoted field was not properly closed
	StatusInvalidQuoted Status = 1 << 2
	// StatusEscape means the content contains escape sequences
	StatusEscape Status = 1 << 3
	// StatusNewline means the field was terminated by a line ending
	StatusNewline Status = 1 << 4
	// StatusDelim means the field was terminated by the delimiter
	StatusDelim Status = 1 << 5
	// StatusEOF means the field was terminated by end of input
	StatusEOF Status = 1 << 6
)

// Has reports whether all bits of flag are set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// Options carries the lexical configuration for one parse. Assembled once by
// the reader and shared read-only by all workers.
type Options struct {
	Sentinels    [][]byte
	Wspace1      byte
	Wspace2      byte
	OpenQuote    byte
	CloseQuote   byte
	Escape       byte
	Delim        []byte
	Decimal      byte
	TrueStrings  [][]byte
	FalseStrings [][]byte
	DateFormat   string

	IgnoreRepeated bool
	// TrimWhitespace is off when the delimiter itself is space or tab
	TrimWhitespace bool
}

// Result reports one scanned field. Pos and Len locate the content bytes in
// the buffer (inside quotes, outside trimmed whitespace); Consumed counts
// every byte from the scan start through the terminator.
type Result struct {
	Int   int64
	Float float64
	Bool  bool

	Status   Status
	Pos      int
	Len      int
	Consumed int
}

// Missing reports whether the cell should be recorded as missing.
func (r Result) Missing() bool {
	return r.Status.Has(StatusSentinel)
}

// Scan reads one field starting at pos. It locates the content, classifies
// the terminator, and flags sentinels and escapes, without attempting any
// typed conversion.
func Scan(buf []byte, pos int, opts *Options) Result {
	res := Result{Pos: pos}
	p := pos

	if p >= len(buf) {
		res.Status |= StatusEOF
		return res
	}

	if opts.TrimWhitespace {
		for p < len(buf) && (buf[p] == opts.Wspace1 || buf[p] == opts.Wspace2) && !atDelim(buf, p, opts) {
			p++
		}
	}

	if p < len(buf) && buf[p] == opts.OpenQuote {
		return scanQuoted(buf, pos, p, opts)
	}

	contentStart := p
	for p < len(buf) {
		if atDelim(buf, p, opts) {
			res.Status |= StatusDelim
			break
		}
		if buf[p] == '\n' || buf[p] == '\r' {
			res.Status |= StatusNewline
			break
		}
		p++
	}
	if p == len(buf) {
		res.Status |= StatusEOF
	}

	contentEnd := p
	if opts.TrimWhitespace {
		for contentEnd > contentStart && (buf[contentEnd-1] == opts.Wspace1 || buf[contentEnd-1] == opts.Wspace2) {
			contentEnd--
		}
	}

	res.Pos = contentStart
	res.Len = contentEnd - contentStart
	res.Consumed = consumeTerminator(buf, p, opts, &res) - pos

	if matchSentinel(buf[contentStart:contentEnd], opts) {
		res.Status |= StatusSentinel
	}
	return res
}

// scanQuoted handles a field that opens with the quote byte at openAt.
// Newlines inside the quotes belong to the field.
func scanQuoted(buf []byte, start, openAt int, opts *Options) Result {
	res := Result{Pos: openAt + 1}
	p := openAt + 1
	closed := false

	for p < len(buf) {
		c := buf[p]
		if c == opts.Escape {
			if opts.Escape == opts.CloseQuote {
				// Doubled quote is an escaped quote, lone quote closes.
				if p+1 < len(buf) && buf[p+1] == opts.CloseQuote {
					res.Status |= StatusEscape
					p += 2
					continue
				}
				closed = true
				break
			}
			if p+1 < len(buf) {
				res.Status |= StatusEscape
				p += 2
				continue
			}
			p++
			continue
		}
		if c == opts.CloseQuote {
			closed = true
			break
		}
		p++
	}

	if !closed {
		res.Status |= StatusInvalidQuoted | StatusEOF
		res.Len = len(buf) - res.Pos
		res.Consumed = len(buf) - start
		return res
	}

	res.Len = p - res.Pos
	p++ // closing quote

	if opts.TrimWhitespace {
		for p < len(buf) && (buf[p] == opts.Wspace1 || buf[p] == opts.Wspace2) && !atDelim(buf, p, opts) {
			p++
		}
	}

	switch {
	case p >= len(buf):
		res.Status |= StatusEOF
	case atDelim(buf, p, opts):
		res.Status |= StatusDelim
	case buf[p] == '\n' || buf[p] == '\r':
		res.Status |= StatusNewline
	}

	res.Consumed = consumeTerminator(buf, p, opts, &res) - start

	content := buf[res.Pos : res.Pos+res.Len]
	if res.Status.Has(StatusEscape) {
		unescaped := Unescape(content, opts.Escape)
		if matchSentinel(unescaped.Bytes(), opts) {
			res.Status |= StatusSentinel
		}
		cometstrings.PutBuilder(unescaped)
	} else if matchSentinel(content, opts) {
		res.Status |= StatusSentinel
	}
	return res
}

// atDelim reports whether the delimiter begins at p. Multi-byte delimiters
// are matched before any whitespace handling.
func atDelim(buf []byte, p int, opts *Options) bool {
	if len(opts.Delim) == 1 {
		return buf[p] == opts.Delim[0]
	}
	return bytes.HasPrefix(buf[p:], opts.Delim)
}

// consumeTerminator advances past the terminator at p and returns the new
// position. Delimiter runs collapse when IgnoreRepeated is set; \r\n counts
// as a single line ending.
func consumeTerminator(buf []byte, p int, opts *Options, res *Result) int {
	switch {
	case res.Status.Has(StatusDelim):
		p += len(opts.Delim)
		if opts.IgnoreRepeated {
			for p < len(buf) && atDelim(buf, p, opts) {
				p += len(opts.Delim)
			}
		}
	case res.Status.Has(StatusNewline):
		if buf[p] == '\r' {
			p++
			if p < len(buf) && buf[p] == '\n' {
				p++
			}
		} else {
			p++
		}
	}
	return p
}

func matchSentinel(content []byte, opts *Options) bool {
	for _, s := range opts.Sentinels {
		if bytes.Equal(content, s) {
			return true
		}
	}
	return false
}

// Unescape expands escape sequences in content into a pooled builder. The
// caller returns the builder with strings.PutBuilder when done.
func Unescape(content []byte, escape byte) *cometstrings.Builder {
	b := cometstrings.GetBuilder()
	for i := 0; i < len(content); i++ {
		if content[i] == escape && i+1 < len(content) {
			i++
		}
		b.WriteByte(content[i])
	}
	return b
}
