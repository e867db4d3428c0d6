package reader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/fieldparse"
	"github.com/ajitpratap0/comet/pkg/source"
	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
)

// delimCandidates is the auto-detection candidate set, in tie-break order.
var delimCandidates = []byte{',', '\t', ' ', '|', ';'}

const (
	detectWindowRows  = 10
	estimateSampleLen = 64 << 10
)

// layout is the resolved shape of the input: column names, the byte offset
// where data begins, the delimiter, and a row-count hint for tape sizing.
type layout struct {
	names       []string
	dataStart   int
	delim       []byte
	fopts       *fieldparse.Options
	rowEstimate int
}

// resolveLayout detects the delimiter, walks to the header and data rows,
// and produces the final column names.
func resolveLayout(buf *source.Buffer, opts *Options) (*layout, error) {
	delim := []byte(opts.Delim)
	if len(delim) == 0 {
		delim = inferDelimiter(buf, opts)
	}
	fopts := opts.fieldOptions(delim)

	it := &rowIter{
		data:    buf.Data,
		pos:     buf.Start,
		end:     buf.End,
		opts:    opts,
		fopts:   fopts,
	}

	lay := &layout{delim: delim, fopts: fopts}

	dataRow := opts.SkipTo
	if dataRow == 0 {
		dataRow = opts.DataRow
	}

	switch {
	case opts.HeaderNames != nil:
		lay.names = append([]string(nil), opts.HeaderNames...)
		if dataRow > 1 {
			it.advanceRows(dataRow - 1)
		}
		lay.dataStart = it.pos

	case opts.HeaderRow >= 1:
		it.advanceRows(opts.HeaderRow - 1)
		headerStart, ok := it.nextRowStart()
		if !ok {
			return nil, cometerrors.New(cometerrors.ErrorTypeHeader, "input ended before header row").
				WithDetail("header_row", opts.HeaderRow)
		}
		names, after := parseHeaderRow(buf.Data[:buf.End], headerStart, fopts)
		it.pos = after
		lay.names = names
		if dataRow > 0 {
			// dataRow counts from the top of the file
			extra := dataRow - opts.HeaderRow - 1
			if extra > 0 {
				it.advanceRows(extra)
			}
		}
		start, _ := it.nextRowStart()
		lay.dataStart = start

	default:
		if dataRow > 1 {
			it.advanceRows(dataRow - 1)
		}
		start, _ := it.nextRowStart()
		lay.dataStart = start
		n := countFields(buf.Data[:buf.End], start, fopts)
		lay.names = syntheticNames(n)
	}

	if lay.dataStart == 0 {
		lay.dataStart = it.pos
	}

	lay.names = normalizeNames(lay.names, opts.NormalizeNames)
	lay.rowEstimate = estimateRows(buf.Data, lay.dataStart, buf.End)
	return lay, nil
}

// rowIter walks logical rows, transparently skipping comment lines and,
// when configured, empty lines. Row boundaries respect quoted fields.
type rowIter struct {
	data  []byte
	pos   int
	end   int
	opts  *Options
	fopts *fieldparse.Options
}

// nextRowStart positions the iterator at the next non-skipped row and
// returns its offset.
func (it *rowIter) nextRowStart() (int, bool) {
	for it.pos < it.end {
		if it.skippable(it.pos) {
			it.pos = skipLine(it.data, it.pos, it.end, it.fopts)
			continue
		}
		return it.pos, true
	}
	return it.pos, false
}

// advanceRows consumes n non-skipped rows.
func (it *rowIter) advanceRows(n int) {
	for i := 0; i < n; i++ {
		start, ok := it.nextRowStart()
		if !ok {
			return
		}
		it.pos = skipLine(it.data, start, it.end, it.fopts)
	}
}

func (it *rowIter) skippable(pos int) bool {
	if it.opts.Comment != "" && bytes.HasPrefix(it.data[pos:it.end], []byte(it.opts.Comment)) {
		return true
	}
	if it.opts.IgnoreEmptyLines {
		c := it.data[pos]
		if c == '\n' || c == '\r' {
			return true
		}
	}
	return false
}

// skipLine advances past one row, honoring quoted fields so embedded
// newlines do not end the row early.
func skipLine(data []byte, pos, end int, fopts *fieldparse.Options) int {
	inQuote := false
	for i := pos; i < end; i++ {
		c := data[i]
		if inQuote {
			if c == fopts.Escape && fopts.Escape == fopts.CloseQuote {
				if i+1 < end && data[i+1] == fopts.CloseQuote {
					i++
					continue
				}
				inQuote = false
			} else if c == fopts.Escape {
				i++
			} else if c == fopts.CloseQuote {
				inQuote = false
			}
			continue
		}
		switch c {
		case fopts.OpenQuote:
			inQuote = true
		case '\n':
			return i + 1
		case '\r':
			if i+1 < end && data[i+1] == '\n' {
				return i + 2
			}
			return i + 1
		}
	}
	return end
}

// countFields counts the fields of the row starting at pos.
func countFields(data []byte, pos int, fopts *fieldparse.Options) int {
	n := 0
	for pos < len(data) {
		res := fieldparse.Scan(data, pos, fopts)
		n++
		pos += res.Consumed
		if !res.Status.Has(fieldparse.StatusDelim) {
			break
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// parseHeaderRow reads the header fields as owned strings and returns the
// offset just past the row.
func parseHeaderRow(data []byte, pos int, fopts *fieldparse.Options) ([]string, int) {
	var names []string
	for pos < len(data) {
		res := fieldparse.Scan(data, pos, fopts)
		content := data[res.Pos : res.Pos+res.Len]
		if res.Status.Has(fieldparse.StatusEscape) {
			b := fieldparse.Unescape(content, fopts.Escape)
			names = append(names, string(b.Bytes()))
			cometstrings.PutBuilder(b)
		} else {
			names = append(names, string(content))
		}
		pos += res.Consumed
		if !res.Status.Has(fieldparse.StatusDelim) {
			break
		}
	}
	return names, pos
}

// inferDelimiter picks the delimiter whose per-row field count over the
// first rows is most consistent. Extension hints win outright. A candidate
// counts only when its modal field count is at least 2 and covers more than
// half of the sampled rows; ties break toward the higher field count and then
// candidate order. With no such candidate the first candidate is used.
func inferDelimiter(buf *source.Buffer, opts *Options) []byte {
	switch strings.ToLower(filepath.Ext(buf.Name)) {
	case ".tsv":
		return []byte{'\t'}
	case ".wsv":
		return []byte{' '}
	}

	data := buf.Data[:buf.End]
	bestScore, bestCount := -1, 0
	best := delimCandidates[0]

	for _, cand := range delimCandidates {
		fopts := opts.fieldOptions([]byte{cand})
		counts := make(map[int]int)
		pos := buf.Start
		rows := 0
		for row := 0; row < detectWindowRows && pos < buf.End; row++ {
			n := countFields(data, pos, fopts)
			counts[n]++
			rows++
			pos = skipLine(data, pos, buf.End, fopts)
		}

		// mode of the per-row field counts
		score, count := 0, 0
		for n, c := range counts {
			if c > score || (c == score && n > count) {
				score, count = c, n
			}
		}
		if count < 2 || score*2 <= rows {
			continue
		}
		if score > bestScore || (score == bestScore && count > bestCount) {
			bestScore, bestCount = score, count
			best = cand
		}
	}
	return []byte{best}
}

// estimateRows extrapolates the row count from a sampled prefix. The value
// is a sizing hint only.
func estimateRows(data []byte, start, end int) int {
	total := end - start
	if total <= 0 {
		return 0
	}
	sampleEnd := start + estimateSampleLen
	if sampleEnd > end {
		sampleEnd = end
	}

	rows := 0
	for i := start; i < sampleEnd; i++ {
		if data[i] == '\n' {
			rows++
		}
	}
	if rows == 0 {
		return 1
	}
	avg := (sampleEnd - start) / rows
	if avg == 0 {
		avg = 1
	}
	return total/avg + 1
}

// syntheticNames generates Column1..ColumnN.
func syntheticNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Column%d", i+1)
	}
	return names
}

// normalizeNames maps names to identifiers when requested and always
// disambiguates duplicates with _1, _2 suffixes.
func normalizeNames(names []string, normalize bool) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))

	for i, name := range names {
		if normalize {
			name = normalizeName(name)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		}
		if _, dup := seen[name]; !dup {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func normalizeName(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name) + 1)
	for i, r := range name {
		valid := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if i == 0 && r >= '0' && r <= '9' {
			b.WriteByte('_')
		}
		if valid {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
