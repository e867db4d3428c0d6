package fieldparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/tape"
)

func testOptions() *Options {
	return &Options{
		Sentinels:      [][]byte{[]byte("")},
		Wspace1:        ' ',
		Wspace2:        '\t',
		OpenQuote:      '"',
		CloseQuote:     '"',
		Escape:         '"',
		Delim:          []byte{','},
		Decimal:        '.',
		TrueStrings:    [][]byte{[]byte("true"), []byte("True")},
		FalseStrings:   [][]byte{[]byte("false"), []byte("False")},
		TrimWhitespace: true,
	}
}

func content(buf []byte, res Result) string {
	return string(buf[res.Pos : res.Pos+res.Len])
}

func TestScanPlainFields(t *testing.T) {
	opts := testOptions()

	t.Run("delimiter terminated", func(t *testing.T) {
		buf := []byte("abc,def")
		res := Scan(buf, 0, opts)
		assert.Equal(t, "abc", content(buf, res))
		assert.True(t, res.Status.Has(StatusDelim))
		assert.Equal(t, 4, res.Consumed)
	})

	t.Run("newline terminated", func(t *testing.T) {
		buf := []byte("abc\ndef")
		res := Scan(buf, 0, opts)
		assert.Equal(t, "abc", content(buf, res))
		assert.True(t, res.Status.Has(StatusNewline))
		assert.Equal(t, 4, res.Consumed)
	})

	t.Run("crlf consumed as one terminator", func(t *testing.T) {
		buf := []byte("abc\r\ndef")
		res := Scan(buf, 0, opts)
		assert.Equal(t, "abc", content(buf, res))
		assert.Equal(t, 5, res.Consumed)
	})

	t.Run("eof terminated", func(t *testing.T) {
		buf := []byte("abc")
		res := Scan(buf, 0, opts)
		assert.Equal(t, "abc", content(buf, res))
		assert.True(t, res.Status.Has(StatusEOF))
		assert.Equal(t, 3, res.Consumed)
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		buf := []byte("  abc\t,x")
		res := Scan(buf, 0, opts)
		assert.Equal(t, "abc", content(buf, res))
		assert.True(t, res.Status.Has(StatusDelim))
	})

	t.Run("empty field is sentinel", func(t *testing.T) {
		buf := []byte(",x")
		res := Scan(buf, 0, opts)
		assert.True(t, res.Missing())
		assert.Equal(t, 0, res.Len)
	})

	t.Run("custom sentinel", func(t *testing.T) {
		o := testOptions()
		o.Sentinels = append(o.Sentinels, []byte("NA"))
		buf := []byte("NA,x")
		res := Scan(buf, 0, o)
		assert.True(t, res.Missing())
	})
}

func TestScanQuotedFields(t *testing.T) {
	opts := testOptions()

	t.Run("quotes stripped", func(t *testing.T) {
		buf := []byte(`"abc",x`)
		res := Scan(buf, 0, opts)
		assert.Equal(t, "abc", content(buf, res))
		assert.True(t, res.Status.Has(StatusDelim))
		assert.Equal(t, 6, res.Consumed)
	})

	t.Run("embedded delimiter", func(t *testing.T) {
		buf := []byte(`"a,b",x`)
		res := Scan(buf, 0, opts)
		assert.Equal(t, "a,b", content(buf, res))
	})

	t.Run("embedded newline", func(t *testing.T) {
		buf := []byte("\"a\nb\",x")
		res := Scan(buf, 0, opts)
		assert.Equal(t, "a\nb", content(buf, res))
		assert.True(t, res.Status.Has(StatusDelim))
	})

	t.Run("doubled quote flags escape", func(t *testing.T) {
		buf := []byte(`"a""b",x`)
		res := Scan(buf, 0, opts)
		require.True(t, res.Status.Has(StatusEscape))
		b := Unescape(buf[res.Pos:res.Pos+res.Len], opts.Escape)
		assert.Equal(t, `a"b`, b.String())
	})

	t.Run("unterminated quote", func(t *testing.T) {
		buf := []byte(`"abc`)
		res := Scan(buf, 0, opts)
		assert.True(t, res.Status.Has(StatusInvalidQuoted))
	})

	t.Run("distinct escape byte", func(t *testing.T) {
		o := testOptions()
		o.Escape = '\\'
		buf := []byte(`"a\"b",x`)
		res := Scan(buf, 0, o)
		require.True(t, res.Status.Has(StatusEscape))
		b := Unescape(buf[res.Pos:res.Pos+res.Len], o.Escape)
		assert.Equal(t, `a"b`, b.String())
	})
}

func TestScanDelimiters(t *testing.T) {
	t.Run("multi-byte delimiter", func(t *testing.T) {
		o := testOptions()
		o.Delim = []byte("||")
		buf := []byte("a||b")
		res := Scan(buf, 0, o)
		assert.Equal(t, "a", content(buf, res))
		assert.True(t, res.Status.Has(StatusDelim))
		assert.Equal(t, 3, res.Consumed)
	})

	t.Run("repeated delimiter collapses", func(t *testing.T) {
		o := testOptions()
		o.Delim = []byte{' '}
		o.TrimWhitespace = false
		o.IgnoreRepeated = true
		buf := []byte("a   b")
		res := Scan(buf, 0, o)
		assert.Equal(t, "a", content(buf, res))
		assert.Equal(t, 4, res.Consumed)
		res = Scan(buf, 4, o)
		assert.Equal(t, "b", content(buf, res))
	})

	t.Run("tab delimiter keeps inner spaces", func(t *testing.T) {
		o := testOptions()
		o.Delim = []byte{'\t'}
		o.TrimWhitespace = false
		buf := []byte("a b\tc")
		res := Scan(buf, 0, o)
		assert.Equal(t, "a b", content(buf, res))
	})
}

func TestTypedParsers(t *testing.T) {
	opts := testOptions()

	t.Run("int", func(t *testing.T) {
		v, ok := ParseInt([]byte("-42"))
		require.True(t, ok)
		assert.Equal(t, int64(-42), v)

		_, ok = ParseInt([]byte("4.2"))
		assert.False(t, ok)
		_, ok = ParseInt([]byte(""))
		assert.False(t, ok)
	})

	t.Run("float", func(t *testing.T) {
		v, ok := ParseFloat([]byte("3.25"), '.')
		require.True(t, ok)
		assert.Equal(t, 3.25, v)

		v, ok = ParseFloat([]byte("1e3"), '.')
		require.True(t, ok)
		assert.Equal(t, 1000.0, v)
	})

	t.Run("comma decimal", func(t *testing.T) {
		v, ok := ParseFloat([]byte("3,25"), ',')
		require.True(t, ok)
		assert.Equal(t, 3.25, v)

		// A period in the content is ambiguous under a comma decimal.
		_, ok = ParseFloat([]byte("3.25"), ',')
		assert.False(t, ok)
	})

	t.Run("bool", func(t *testing.T) {
		v, ok := ParseBool([]byte("True"), opts)
		require.True(t, ok)
		assert.True(t, v)

		v, ok = ParseBool([]byte("false"), opts)
		require.True(t, ok)
		assert.False(t, v)

		_, ok = ParseBool([]byte("yes"), opts)
		assert.False(t, ok)
	})

	t.Run("date", func(t *testing.T) {
		v, ok := ParseDate([]byte("1970-01-02"), opts)
		require.True(t, ok)
		assert.Equal(t, int64(1), v)

		// Dates before the epoch floor toward negative infinity.
		v, ok = ParseDate([]byte("1969-12-31"), opts)
		require.True(t, ok)
		assert.Equal(t, int64(-1), v)
	})

	t.Run("datetime", func(t *testing.T) {
		v, ok := ParseDateTime([]byte("1970-01-01T00:00:01"), opts)
		require.True(t, ok)
		assert.Equal(t, int64(1_000_000), v)

		v, ok = ParseDateTime([]byte("1970-01-01 00:00:01"), opts)
		require.True(t, ok)
		assert.Equal(t, int64(1_000_000), v)
	})

	t.Run("time", func(t *testing.T) {
		v, ok := ParseTime([]byte("01:02:03"), opts)
		require.True(t, ok)
		assert.Equal(t, int64(3723)*1e9, v)

		v, ok = ParseTime([]byte("01:02"), opts)
		require.True(t, ok)
		assert.Equal(t, int64(3720)*1e9, v)
	})
}

func TestDateFormatKind(t *testing.T) {
	assert.Equal(t, tape.Date, DateFormatKind("2006-01-02"))
	assert.Equal(t, tape.DateTime, DateFormatKind("2006-01-02 15:04"))
	assert.Equal(t, tape.Time, DateFormatKind("15:04:05"))
}

func TestParseContract(t *testing.T) {
	opts := testOptions()

	t.Run("ok on success", func(t *testing.T) {
		buf := []byte("42,x")
		res := Parse(tape.Int, buf, 0, opts)
		assert.True(t, res.Status.Has(StatusOK))
		assert.Equal(t, int64(42), res.Int)
		assert.True(t, res.Status.Has(StatusDelim))
	})

	t.Run("no ok on mismatch", func(t *testing.T) {
		buf := []byte("abc,x")
		res := Parse(tape.Int, buf, 0, opts)
		assert.False(t, res.Status.Has(StatusOK))
		assert.True(t, res.Status.Has(StatusDelim))
	})

	t.Run("sentinel short-circuits", func(t *testing.T) {
		buf := []byte(",x")
		res := Parse(tape.Int, buf, 0, opts)
		assert.True(t, res.Missing())
		assert.False(t, res.Status.Has(StatusOK))
	})

	t.Run("escaped content converts once", func(t *testing.T) {
		buf := []byte(`"4""2"`)
		res := Parse(tape.String, buf, 0, opts)
		assert.True(t, res.Status.Has(StatusOK))
		assert.True(t, res.Status.Has(StatusEscape))
	})
}
