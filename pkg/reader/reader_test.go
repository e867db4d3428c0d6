package reader

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
)

func mustParse(t *testing.T, data string, opts *Options) *File {
	t.Helper()
	f, err := ParseFile(context.Background(), []byte(data), opts)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func stringCol(t *testing.T, f *File, col int) []string {
	t.Helper()
	sv, err := f.Strings(col)
	require.NoError(t, err)
	out := make([]string, sv.Len())
	for i := range out {
		s, ok := sv.Value(i)
		require.True(t, ok)
		out[i] = s
	}
	return out
}

func TestParseBasicTyping(t *testing.T) {
	f := mustParse(t, "id,score,name\n1,1.5,alpha\n2,2.5,beta\n", nil)

	assert.Equal(t, 2, f.Rows())
	assert.Equal(t, 3, f.Cols())
	assert.Equal(t, []string{"id", "score", "name"}, f.Names())
	assert.Equal(t, "int", f.Type(0))
	assert.Equal(t, "float", f.Type(1))
	assert.Equal(t, "string", f.Type(2))

	iv, err := f.Ints(0)
	require.NoError(t, err)
	v, ok := iv.Value(1)
	require.True(t, ok)
	assert.Equal(t, int64(2), v)

	fv, err := f.Floats(1)
	require.NoError(t, err)
	fval, ok := fv.Value(0)
	require.True(t, ok)
	assert.Equal(t, 1.5, fval)

	assert.Equal(t, []string{"alpha", "beta"}, stringCol(t, f, 2))

	col, ok := f.Column("score")
	require.True(t, ok)
	assert.Equal(t, 1, col)
	_, ok = f.Column("nope")
	assert.False(t, ok)
}

func TestParseMissingValues(t *testing.T) {
	t.Run("empty field", func(t *testing.T) {
		f := mustParse(t, "a,b\n1,\n2,3\n", nil)
		assert.False(t, f.HasMissing(0))
		assert.True(t, f.HasMissing(1))

		iv, err := f.Ints(1)
		require.NoError(t, err)
		_, ok := iv.Value(0)
		assert.False(t, ok)
		v, ok := iv.Value(1)
		require.True(t, ok)
		assert.Equal(t, int64(3), v)
	})

	t.Run("custom missing strings", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MissingStrings = []string{"", "NA"}
		f := mustParse(t, "a\n1\nNA\n2\n", opts)
		iv, err := f.Ints(0)
		require.NoError(t, err)
		_, ok := iv.Value(1)
		assert.False(t, ok)
	})

	t.Run("all-missing column stays readable", func(t *testing.T) {
		f := mustParse(t, "a,b\n1,\n2,\n", nil)
		sv, err := f.Strings(1)
		require.NoError(t, err)
		_, ok := sv.Value(0)
		assert.False(t, ok)
	})
}

func TestHeaderHandling(t *testing.T) {
	t.Run("no header synthesizes names", func(t *testing.T) {
		opts := DefaultOptions()
		opts.NoHeader()
		f := mustParse(t, "1,2\n3,4\n", opts)
		assert.Equal(t, []string{"Column1", "Column2"}, f.Names())
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("explicit names replace the header", func(t *testing.T) {
		opts := DefaultOptions()
		opts.HeaderNames = []string{"x", "y"}
		f := mustParse(t, "1,2\n3,4\n", opts)
		assert.Equal(t, []string{"x", "y"}, f.Names())
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("header on a later row", func(t *testing.T) {
		opts := DefaultOptions()
		opts.HeaderRow = 2
		f := mustParse(t, "junk line\na,b\n1,2\n", opts)
		assert.Equal(t, []string{"a", "b"}, f.Names())
		assert.Equal(t, 1, f.Rows())
	})

	t.Run("normalized names with duplicates", func(t *testing.T) {
		opts := DefaultOptions()
		opts.NormalizeNames = true
		f := mustParse(t, "my col,my col,2bad\n1,2,3\n", opts)
		assert.Equal(t, []string{"my_col", "my_col_1", "_2bad"}, f.Names())
	})

	t.Run("missing header row fails", func(t *testing.T) {
		opts := DefaultOptions()
		opts.HeaderRow = 5
		_, err := ParseFile(context.Background(), []byte("a,b\n"), opts)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeHeader))
	})
}

func TestDelimiterHandling(t *testing.T) {
	t.Run("semicolon inferred", func(t *testing.T) {
		f := mustParse(t, "a;b\n1;2\n3;4\n", nil)
		assert.Equal(t, []string{"a", "b"}, f.Names())
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("pipe inferred", func(t *testing.T) {
		f := mustParse(t, "a|b|c\n1|2|3\n", nil)
		assert.Equal(t, 3, f.Cols())
	})

	t.Run("tab inferred", func(t *testing.T) {
		f := mustParse(t, "a\tb\n1\t2\n", nil)
		assert.Equal(t, []string{"a", "b"}, f.Names())
	})

	t.Run("explicit multi-byte delimiter", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Delim = "||"
		f := mustParse(t, "a||b\n1||2\n", opts)
		assert.Equal(t, []string{"a", "b"}, f.Names())
		iv, err := f.Ints(1)
		require.NoError(t, err)
		v, ok := iv.Value(0)
		require.True(t, ok)
		assert.Equal(t, int64(2), v)
	})

	t.Run("repeated delimiter runs collapse", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Delim = " "
		opts.IgnoreRepeated = true
		f := mustParse(t, "a b\n1   2\n3 4\n", opts)
		assert.Equal(t, 2, f.Cols())
		iv, err := f.Ints(1)
		require.NoError(t, err)
		v, ok := iv.Value(0)
		require.True(t, ok)
		assert.Equal(t, int64(2), v)
	})
}

func TestQuotedFields(t *testing.T) {
	t.Run("embedded delimiter and newline", func(t *testing.T) {
		f := mustParse(t, "a,b\n\"x,y\",\"p\nq\"\nplain,z\n", nil)
		assert.Equal(t, 2, f.Rows())
		assert.Equal(t, []string{"x,y", "plain"}, stringCol(t, f, 0))
		assert.Equal(t, []string{"p\nq", "z"}, stringCol(t, f, 1))
	})

	t.Run("escaped quotes unescape", func(t *testing.T) {
		f := mustParse(t, "a\n\"he said \"\"hi\"\"\"\n", nil)
		assert.Equal(t, []string{`he said "hi"`}, stringCol(t, f, 0))
	})

	t.Run("quoted header names", func(t *testing.T) {
		f := mustParse(t, "\"a,1\",b\nx,y\n", nil)
		assert.Equal(t, []string{"a,1", "b"}, f.Names())
	})

	t.Run("unterminated quote fails", func(t *testing.T) {
		_, err := ParseFile(context.Background(), []byte("a\n\"oops\n"), nil)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeQuote))
	})
}

func TestTypePromotion(t *testing.T) {
	t.Run("int widens to float", func(t *testing.T) {
		f := mustParse(t, "v\n1\n2\n2.5\n", nil)
		assert.Equal(t, "float", f.Type(0))
		fv, err := f.Floats(0)
		require.NoError(t, err)
		for i, want := range []float64{1, 2, 2.5} {
			v, ok := fv.Value(i)
			require.True(t, ok)
			assert.Equal(t, want, v)
		}
	})

	t.Run("fallback to string keeps earlier cells", func(t *testing.T) {
		f := mustParse(t, "v\n1\n2\nhello\n", nil)
		assert.Equal(t, "string", f.Type(0))
		assert.Equal(t, []string{"1", "2", "hello"}, stringCol(t, f, 0))
	})

	t.Run("date to string fallback", func(t *testing.T) {
		f := mustParse(t, "v\n2024-01-02\nnot a date\n", nil)
		assert.Equal(t, "string", f.Type(0))
		assert.Equal(t, []string{"2024-01-02", "not a date"}, stringCol(t, f, 0))
	})

	t.Run("bool column", func(t *testing.T) {
		f := mustParse(t, "v\ntrue\nF\n", nil)
		assert.Equal(t, "bool", f.Type(0))
		bv, err := f.Bools(0)
		require.NoError(t, err)
		v, ok := bv.Value(0)
		require.True(t, ok)
		assert.True(t, v)
		v, ok = bv.Value(1)
		require.True(t, ok)
		assert.False(t, v)
	})
}

func TestTemporalColumns(t *testing.T) {
	t.Run("date", func(t *testing.T) {
		f := mustParse(t, "d\n2024-01-02\n1969-12-31\n", nil)
		assert.Equal(t, "date", f.Type(0))
		dv, err := f.Dates(0)
		require.NoError(t, err)
		v, ok := dv.Value(0)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), v)
		days, ok := dv.Days(1)
		require.True(t, ok)
		assert.Equal(t, int64(-1), days)
	})

	t.Run("datetime", func(t *testing.T) {
		f := mustParse(t, "ts\n2024-01-02 03:04:05\n", nil)
		assert.Equal(t, "datetime", f.Type(0))
		dv, err := f.DateTimes(0)
		require.NoError(t, err)
		v, ok := dv.Value(0)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), v)
	})

	t.Run("time of day", func(t *testing.T) {
		f := mustParse(t, "t\n01:02:03\n", nil)
		assert.Equal(t, "time", f.Type(0))
		tv, err := f.Times(0)
		require.NoError(t, err)
		v, ok := tv.Value(0)
		require.True(t, ok)
		assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, v)
	})

	t.Run("custom date format", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DateFormat = "01/02/2006"
		f := mustParse(t, "d\n01/02/2024\n", opts)
		assert.Equal(t, "date", f.Type(0))
		dv, err := f.Dates(0)
		require.NoError(t, err)
		v, ok := dv.Value(0)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), v)
	})
}

func TestPinnedTypes(t *testing.T) {
	t.Run("pin all columns", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Type = "string"
		f := mustParse(t, "a,b\n1,2\n", opts)
		assert.Equal(t, "string", f.Type(0))
		assert.Equal(t, "string", f.Type(1))
		assert.Equal(t, []string{"1"}, stringCol(t, f, 0))
	})

	t.Run("pin one column by name", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Types = map[string]string{"b": "float"}
		f := mustParse(t, "a,b\n1,2\n", opts)
		assert.Equal(t, "int", f.Type(0))
		assert.Equal(t, "float", f.Type(1))
		fv, err := f.Floats(1)
		require.NoError(t, err)
		v, ok := fv.Value(0)
		require.True(t, ok)
		assert.Equal(t, 2.0, v)
	})

	t.Run("pin by index", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TypesByIndex = []string{"", "string"}
		f := mustParse(t, "a,b\n1,2\n", opts)
		assert.Equal(t, "int", f.Type(0))
		assert.Equal(t, "string", f.Type(1))
	})

	t.Run("unknown pin column fails", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Types = map[string]string{"zzz": "int"}
		_, err := ParseFile(context.Background(), []byte("a\n1\n"), opts)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeType))
	})

	t.Run("strict mismatch aborts", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Types = map[string]string{"a": "int"}
		opts.Strict = true
		_, err := ParseFile(context.Background(), []byte("a\nhello\n"), opts)
		require.Error(t, err)
		assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeStrict))
	})

	t.Run("lenient mismatch coerces to missing", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Types = map[string]string{"a": "int"}
		f := mustParse(t, "a\n1\nhello\n", opts)
		iv, err := f.Ints(0)
		require.NoError(t, err)
		_, ok := iv.Value(1)
		assert.False(t, ok)

		require.NotEmpty(t, f.Warnings())
		assert.Equal(t, "coerced_missing", f.Warnings()[0].Kind)
	})
}

func TestTypeRewrites(t *testing.T) {
	opts := DefaultOptions()
	opts.TypeMap = map[string]string{"int": "float"}
	f := mustParse(t, "a\n1\n2\n", opts)
	assert.Equal(t, "float", f.Type(0))
	fv, err := f.Floats(0)
	require.NoError(t, err)
	v, ok := fv.Value(0)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestStringPooling(t *testing.T) {
	t.Run("low cardinality pools", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Pool = 1.0
		f := mustParse(t, "c\nred\nblue\nred\nblue\n", opts)
		assert.Equal(t, "string", f.Type(0))
		assert.Equal(t, []string{"red", "blue"}, f.Pool(0))
		assert.Equal(t, []string{"red", "blue", "red", "blue"}, stringCol(t, f, 0))
	})

	t.Run("high cardinality promotes to plain string", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Pool = 0.01
		f := mustParse(t, "c\naa\nbb\ncc\ndd\n", opts)
		assert.Equal(t, "string", f.Type(0))
		assert.Nil(t, f.Pool(0))
		assert.Equal(t, []string{"aa", "bb", "cc", "dd"}, stringCol(t, f, 0))
	})

	t.Run("pin bypasses pooling", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Pool = 1.0
		opts.Types = map[string]string{"n": "int"}
		f := mustParse(t, "n\n1\n2\n", opts)
		assert.Equal(t, "int", f.Type(0))
	})
}

func TestRowSelection(t *testing.T) {
	t.Run("limit", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Limit = 2
		f := mustParse(t, "a\n1\n2\n3\n4\n", opts)
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("comment lines skipped", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Comment = "#"
		f := mustParse(t, "# leading\na\n1\n# middle\n2\n", opts)
		assert.Equal(t, []string{"a"}, f.Names())
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("empty lines skipped", func(t *testing.T) {
		f := mustParse(t, "a\n1\n\n2\n", nil)
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("footer skip", func(t *testing.T) {
		opts := DefaultOptions()
		opts.FooterSkip = 1
		f := mustParse(t, "a\n1\n2\ntotal\n", opts)
		assert.Equal(t, "int", f.Type(0))
		assert.Equal(t, 2, f.Rows())
	})

	t.Run("data row after header", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DataRow = 4
		f := mustParse(t, "a\nskip1\nskip2\n1\n2\n", opts)
		assert.Equal(t, "int", f.Type(0))
		assert.Equal(t, 2, f.Rows())
	})
}

func TestRowShapeWarnings(t *testing.T) {
	f := mustParse(t, "a,b\n1\n2,3,4\n", nil)
	assert.Equal(t, 2, f.Rows())

	kinds := make(map[string]int)
	for _, w := range f.Warnings() {
		kinds[w.Kind]++
	}
	assert.Equal(t, 1, kinds["short_row"])
	assert.Equal(t, 1, kinds["long_row"])

	iv, err := f.Ints(1)
	require.NoError(t, err)
	_, ok := iv.Value(0)
	assert.False(t, ok)
	v, ok := iv.Value(1)
	require.True(t, ok)
	assert.Equal(t, int64(3), v)
}

func TestTranspose(t *testing.T) {
	opts := DefaultOptions()
	opts.Transpose = true
	f := mustParse(t, "name,a,b\nval,1,2\n", opts)

	assert.Equal(t, []string{"name", "val"}, f.Names())
	assert.Equal(t, 2, f.Rows())
	assert.Equal(t, []string{"a", "b"}, stringCol(t, f, 0))

	iv, err := f.Ints(1)
	require.NoError(t, err)
	v, ok := iv.Value(1)
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestCRLFInput(t *testing.T) {
	f := mustParse(t, "a,b\r\n1,x\r\n2,y\r\n", nil)
	assert.Equal(t, 2, f.Rows())
	assert.Equal(t, []string{"x", "y"}, stringCol(t, f, 1))
}

func TestGet(t *testing.T) {
	f := mustParse(t, "i,f,s,b\n1,1.5,x,true\n,,,\n", nil)

	v, ok := f.Get(0, 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	v, ok = f.Get(1, 0)
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	v, ok = f.Get(2, 0)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = f.Get(3, 0)
	require.True(t, ok)
	assert.Equal(t, true, v)

	for col := 0; col < 4; col++ {
		_, ok := f.Get(col, 1)
		assert.False(t, ok)
	}
}

func TestViewTypeMismatch(t *testing.T) {
	f := mustParse(t, "a\nhello\n", nil)
	_, err := f.Ints(0)
	require.Error(t, err)
	assert.True(t, cometerrors.IsType(err, cometerrors.ErrorTypeType))
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Options)
		typ  cometerrors.ErrorType
	}{
		{"newline in delimiter", func(o *Options) { o.Delim = "a\nb" }, cometerrors.ErrorTypeDelimiter},
		{"ignore repeated without delimiter", func(o *Options) { o.IgnoreRepeated = true }, cometerrors.ErrorTypeDelimiter},
		{"pool out of range", func(o *Options) { o.Pool = 1.5 }, cometerrors.ErrorTypeConfig},
		{"data row before header", func(o *Options) { o.DataRow = 1 }, cometerrors.ErrorTypeHeader},
		{"unknown global type", func(o *Options) { o.Type = "uuid" }, cometerrors.ErrorTypeType},
		{"unknown pinned type", func(o *Options) { o.Types = map[string]string{"a": "uuid"} }, cometerrors.ErrorTypeType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mod(opts)
			_, err := ParseFile(context.Background(), []byte("a\n1\n"), opts)
			require.Error(t, err)
			assert.True(t, cometerrors.IsType(err, tc.typ))
		})
	}
}

func buildLargeCSV(rows int, lastFloat bool) string {
	var b strings.Builder
	b.WriteString("id,mix,tag\n")
	tags := []string{"red", "green", "blue"}
	for i := 0; i < rows; i++ {
		mix := "1"
		if lastFloat && i == rows-1 {
			mix = "1.5"
		}
		fmt.Fprintf(&b, "%d,%s,%s\n", i, mix, tags[i%len(tags)])
	}
	return b.String()
}

func TestParallelParse(t *testing.T) {
	const rows = 4000

	t.Run("values survive the merge", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Workers = 4
		f := mustParse(t, buildLargeCSV(rows, false), opts)

		assert.Equal(t, rows, f.Rows())
		iv, err := f.Ints(0)
		require.NoError(t, err)
		for _, row := range []int{0, 1, rows / 2, rows - 1} {
			v, ok := iv.Value(row)
			require.True(t, ok)
			assert.Equal(t, int64(row), v)
		}
		sv, err := f.Strings(2)
		require.NoError(t, err)
		s, ok := sv.Value(rows - 1)
		require.True(t, ok)
		assert.Equal(t, []string{"red", "green", "blue"}[(rows-1)%3], s)
	})

	t.Run("late float promotes earlier chunks", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Workers = 4
		f := mustParse(t, buildLargeCSV(rows, true), opts)

		assert.Equal(t, "float", f.Type(1))
		fv, err := f.Floats(1)
		require.NoError(t, err)
		v, ok := fv.Value(0)
		require.True(t, ok)
		assert.Equal(t, 1.0, v)
		v, ok = fv.Value(rows - 1)
		require.True(t, ok)
		assert.Equal(t, 1.5, v)
	})

	t.Run("pool refs recode across workers", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Workers = 4
		opts.Pool = 0.5
		f := mustParse(t, buildLargeCSV(rows, false), opts)

		assert.Equal(t, "string", f.Type(2))
		require.NotNil(t, f.Pool(2))
		assert.Len(t, f.Pool(2), 3)
		sv, err := f.Strings(2)
		require.NoError(t, err)
		for _, row := range []int{0, rows / 3, rows - 1} {
			s, ok := sv.Value(row)
			require.True(t, ok)
			assert.Equal(t, []string{"red", "green", "blue"}[row%3], s)
		}
	})

	t.Run("single thread matches", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Threaded = Off
		f := mustParse(t, buildLargeCSV(rows, false), opts)
		assert.Equal(t, rows, f.Rows())
	})
}
