package reader

import (
	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/fieldparse"
	"github.com/ajitpratap0/comet/pkg/source"
	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// parseTransposed interprets each line as one column. A cursor per column
// advances one field per logical row, so row r is the r-th field of every
// line. Threading is never used here.
func parseTransposed(buf *source.Buffer, opts *Options) (*chunkState, *parseContext, []string, error) {
	delim := []byte(opts.Delim)
	if len(delim) == 0 {
		delim = inferDelimiter(buf, opts)
	}
	fopts := opts.fieldOptions(delim)
	data := buf.Data[:buf.End]

	// One line per column.
	var lineStarts []int
	it := &rowIter{data: buf.Data, pos: buf.Start, end: buf.End, opts: opts, fopts: fopts}
	for {
		start, ok := it.nextRowStart()
		if !ok {
			break
		}
		lineStarts = append(lineStarts, start)
		it.pos = skipLine(buf.Data, start, buf.End, fopts)
	}
	if len(lineStarts) == 0 {
		return nil, nil, nil, cometerrors.New(cometerrors.ErrorTypeSource, "transposed input has no lines")
	}

	ncols := len(lineStarts)
	names := make([]string, ncols)
	cursors := make([]int, ncols)
	done := make([]bool, ncols)

	// The first field of each line names the column unless headers are off.
	for i, start := range lineStarts {
		if opts.HeaderRow == 0 && opts.HeaderNames == nil {
			cursors[i] = start
			continue
		}
		res := fieldparse.Scan(data, start, fopts)
		content := data[res.Pos : res.Pos+res.Len]
		if res.Status.Has(fieldparse.StatusEscape) {
			b := fieldparse.Unescape(content, fopts.Escape)
			names[i] = string(b.Bytes())
			cometstrings.PutBuilder(b)
		} else {
			names[i] = string(content)
		}
		cursors[i] = start + res.Consumed
		if !res.Status.Has(fieldparse.StatusDelim) {
			done[i] = true
		}
	}
	if opts.HeaderRow == 0 && opts.HeaderNames == nil {
		names = syntheticNames(ncols)
	}
	if opts.HeaderNames != nil {
		copy(names, opts.HeaderNames)
	}
	names = normalizeNames(names, opts.NormalizeNames)

	est := countFields(data, lineStarts[0], fopts)
	pc := &parseContext{
		data:          buf.Data,
		fopts:         fopts,
		opts:          opts,
		types:         tape.NewAtomicTypes(ncols),
		ncols:         ncols,
		rowEstimate:   est,
		poolThreshold: opts.Pool,
		pooling:       opts.Pool > 0,
		limit:         opts.Limit,
	}
	pins, err := opts.pinnedTypes(names)
	if err != nil {
		return nil, nil, nil, err
	}
	for col, pin := range pins {
		if pin != 0 {
			pc.types.Store(col, pin)
		}
	}
	pc.rewrites, err = opts.typeRewrites()
	if err != nil {
		return nil, nil, nil, err
	}

	cs := newChunkState(pc, est)

	for {
		anyLeft := false
		for col := 0; col < ncols; col++ {
			if !done[col] && cursors[col] < buf.End {
				anyLeft = true
				break
			}
		}
		if !anyLeft {
			break
		}
		if pc.limit > 0 && cs.rows >= pc.limit {
			break
		}

		for col := 0; col < ncols; col++ {
			if done[col] || cursors[col] >= buf.End {
				cs.fillMissing(pc, col)
				continue
			}
			res := fieldparse.Scan(data, cursors[col], fopts)
			if res.Status.Has(fieldparse.StatusInvalidQuoted) {
				return nil, nil, nil, cometerrors.New(cometerrors.ErrorTypeQuote, "unterminated quoted field").
					WithDetail("column", col).
					WithDetail("offset", res.Pos)
			}
			cursors[col] += res.Consumed
			if !res.Status.Has(fieldparse.StatusDelim) {
				done[col] = true
			}
			if err := cs.writeCell(pc, col, res); err != nil {
				return nil, nil, nil, err
			}
		}
		cs.rows++
	}

	return cs, pc, names, nil
}
