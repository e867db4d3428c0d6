package reader

import (
	"fmt"
	"math"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/fieldparse"
	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// Warning is a non-fatal parse diagnostic.
type Warning struct {
	Row     int
	Col     int
	Kind    string
	Message string
}

// parseContext is the read-only state shared by every worker of one parse.
type parseContext struct {
	data     []byte
	fopts    *fieldparse.Options
	opts     *Options
	types    *tape.AtomicTypes
	rewrites map[tape.TypeCode]tape.TypeCode

	ncols         int
	rowEstimate   int
	poolThreshold float64
	pooling       bool
	limit         int
}

// chunkState is one worker's private output: tapes, sidecars, and pool maps
// for every column, plus the warnings it raised.
type chunkState struct {
	tapes    []*tape.Tape
	sidecars []*tape.Sidecar
	refmaps  []*tape.RefMap
	rows     int
	capRows  int
	warnings []Warning
}

func newChunkState(pc *parseContext, estRows int) *chunkState {
	if estRows < 1 {
		estRows = 1
	}
	cs := &chunkState{
		tapes:    make([]*tape.Tape, pc.ncols),
		sidecars: make([]*tape.Sidecar, pc.ncols),
		refmaps:  make([]*tape.RefMap, pc.ncols),
		capRows:  estRows,
	}
	for i := 0; i < pc.ncols; i++ {
		cs.tapes[i] = tape.NewTape(estRows)
		cs.sidecars[i] = tape.NewSidecar(estRows)
		if pc.pooling {
			cs.refmaps[i] = tape.NewRefMap()
		}
	}
	return cs
}

// ensureRows grows every tape when the row counter reaches capacity; sidecars
// grow on append. The new size extrapolates from the bytes still ahead of the
// cursor.
func (cs *chunkState) ensureRows(pos, start, end int) {
	if cs.rows < cs.capRows {
		return
	}
	avg := 1
	if cs.rows > 0 && pos > start {
		avg = (pos - start) / cs.rows
		if avg == 0 {
			avg = 1
		}
	}
	extra := (end-pos)/avg + 10
	for i := range cs.tapes {
		cs.tapes[i].EnsureRows(extra)
	}
	cs.capRows = cs.rows + extra
}

func (cs *chunkState) warn(pc *parseContext, row, col int, kind, msg string) {
	if pc.opts.SilenceWarnings {
		return
	}
	cs.warnings = append(cs.warnings, Warning{Row: row, Col: col, Kind: kind, Message: msg})
}

// parseChunk runs the row loop over data[start:end). Workers and the
// single-threaded path share this code; only the chunk bounds differ.
func parseChunk(pc *parseContext, start, end, estRows int) (*chunkState, error) {
	cs := newChunkState(pc, estRows)
	data := pc.data[:end]

	it := &rowIter{data: pc.data, pos: start, end: end, opts: pc.opts, fopts: pc.fopts}

	pos := start
	for pos < end {
		it.pos = pos
		rowStart, ok := it.nextRowStart()
		if !ok {
			break
		}
		pos = rowStart
		if pc.limit > 0 && cs.rows >= pc.limit {
			break
		}

		cs.ensureRows(pos, start, end)

		terminated := false
		short := false
		for col := 0; col < pc.ncols; col++ {
			if terminated {
				cs.fillMissing(pc, col)
				short = true
				continue
			}

			res := fieldparse.Scan(data, pos, pc.fopts)
			if res.Status.Has(fieldparse.StatusInvalidQuoted) {
				return nil, cometerrors.New(cometerrors.ErrorTypeQuote, "unterminated quoted field").
					WithDetail("row", cs.rows).
					WithDetail("column", col).
					WithDetail("offset", res.Pos)
			}
			pos += res.Consumed
			if !res.Status.Has(fieldparse.StatusDelim) {
				terminated = true
			}

			if err := cs.writeCell(pc, col, res); err != nil {
				return nil, err
			}
		}

		if short {
			cs.warn(pc, cs.rows, 0, "short_row",
				fmt.Sprintf("row %d has fewer fields than columns", cs.rows))
		}

		if !terminated {
			cs.warn(pc, cs.rows, pc.ncols, "long_row",
				fmt.Sprintf("row %d has more fields than columns, extras dropped", cs.rows))
			for pos < end {
				res := fieldparse.Scan(data, pos, pc.fopts)
				if res.Status.Has(fieldparse.StatusInvalidQuoted) {
					return nil, cometerrors.New(cometerrors.ErrorTypeQuote, "unterminated quoted field").
						WithDetail("row", cs.rows).
						WithDetail("offset", res.Pos)
				}
				pos += res.Consumed
				if !res.Status.Has(fieldparse.StatusDelim) {
					break
				}
			}
		}

		cs.rows++
	}

	return cs, nil
}

// fillMissing writes a missing cell for a column absent from a short row.
func (cs *chunkState) fillMissing(pc *parseContext, col int) {
	cs.tapes[col].Append(tape.MissingBit, 0)
	cs.sidecars[col].Append(0)
	pc.types.Promote(col, tape.MissingType)
}

// writeCell runs the inference state machine for one cell and appends it to
// the column's tape.
func (cs *chunkState) writeCell(pc *parseContext, col int, res fieldparse.Result) error {
	if uint64(res.Len) > tape.MaxFieldLen {
		return cometerrors.Newf(cometerrors.ErrorTypeData,
			"field of %d bytes exceeds the %d-byte cell limit", res.Len, tape.MaxFieldLen).
			WithDetail("row", cs.rows).
			WithDetail("column", col)
	}
	packed := tape.PackPoslen(uint64(res.Pos), uint64(res.Len), 0)
	var flags uint64
	if res.Status.Has(fieldparse.StatusEscape) {
		flags |= tape.EscapeBit
	}

	if res.Missing() {
		cs.tapes[col].Append(packed|flags|tape.MissingBit, 0)
		cs.sidecars[col].Append(packed | flags | tape.MissingBit)
		pc.types.Promote(col, tape.MissingType)
		return nil
	}

	content := pc.data[res.Pos : res.Pos+res.Len]
	var builder *cometstrings.Builder
	if res.Status.Has(fieldparse.StatusEscape) {
		builder = fieldparse.Unescape(content, pc.fopts.Escape)
		content = builder.Bytes()
		defer cometstrings.PutBuilder(builder)
	}

	cur := pc.types.Load(col)

	if cur.IsUser() {
		return cs.writePinned(pc, col, cur, res, content, packed, flags)
	}

	switch cur.Base() {
	case tape.Empty, tape.MissingType:
		return cs.writeFirst(pc, col, res, content, packed, flags)
	case tape.Pool:
		return cs.writePool(pc, col, content, packed, flags)
	case tape.String:
		cs.tapes[col].Append(packed|flags, 0)
		cs.sidecars[col].Append(packed | flags)
		return nil
	default:
		return cs.writeTyped(pc, col, cur, res, content, packed, flags)
	}
}

// writePinned handles a user-pinned column: only the pinned type is tried,
// and failures either abort (strict) or become missing.
func (cs *chunkState) writePinned(pc *parseContext, col int, cur tape.TypeCode, res fieldparse.Result, content []byte, packed, flags uint64) error {
	value, ok := parseAs(cur.Base(), content, pc.fopts)
	if !ok {
		if pc.opts.Strict {
			return cometerrors.Newf(cometerrors.ErrorTypeStrict,
				"value does not parse as pinned type %s", cur.Kind()).
				WithDetail("row", cs.rows).
				WithDetail("column", col).
				WithDetail("value", string(content))
		}
		cs.warn(pc, cs.rows, col, "coerced_missing",
			fmt.Sprintf("row %d column %d: value does not parse as %s, coerced to missing", cs.rows, col, cur.Kind()))
		cs.tapes[col].Append(packed|flags|tape.MissingBit, 0)
		cs.sidecars[col].Append(packed | flags | tape.MissingBit)
		pc.types.Promote(col, tape.MissingType)
		return nil
	}
	cs.appendTyped(pc, col, cur.Base(), value, packed, flags)
	return nil
}

// writeFirst commits a column's type from its first non-missing cell.
func (cs *chunkState) writeFirst(pc *parseContext, col int, res fieldparse.Result, content []byte, packed, flags uint64) error {
	if pc.pooling {
		pc.types.Promote(col, tape.Pool)
		return cs.writePool(pc, col, content, packed, flags)
	}

	kind, value := probe(content, pc.fopts)
	if to, ok := pc.rewrites[kind]; ok && to != kind {
		if v, parsed := parseAs(to, content, pc.fopts); parsed {
			kind, value = to, v
		} else {
			kind, value = tape.String, 0
		}
	}

	pc.types.Promote(col, kind)
	cs.appendTyped(pc, col, kind, value, packed, flags)
	return nil
}

// writeTyped handles a column already committed to a concrete type: parse as
// that type, or promote.
func (cs *chunkState) writeTyped(pc *parseContext, col int, cur tape.TypeCode, res fieldparse.Result, content []byte, packed, flags uint64) error {
	base := cur.Base()
	if value, ok := parseAs(base, content, pc.fopts); ok {
		cs.appendTyped(pc, col, base, value, packed, flags)
		return nil
	}

	if base == tape.Int {
		if f, ok := fieldparse.ParseFloat(content, pc.fopts.Decimal); ok {
			pc.types.Promote(col, tape.Float)
			cs.tapes[col].RecodeIntToFloat()
			cs.appendTyped(pc, col, tape.Float, math.Float64bits(f), packed, flags)
			return nil
		}
	}

	// Fall back to string: prior rows get their offsets from the sidecar.
	pc.types.Promote(col, tape.String)
	cs.sidecars[col].CopyIntoTape(cs.tapes[col])
	cs.tapes[col].Append(packed|flags, 0)
	cs.sidecars[col].Append(packed | flags)
	return nil
}

// writePool appends a pooled string cell and promotes the column to plain
// String when cardinality outgrows the threshold.
func (cs *chunkState) writePool(pc *parseContext, col int, content []byte, packed, flags uint64) error {
	rm := cs.refmaps[col]
	ref := rm.Ref(content)
	cs.tapes[col].Append(packed|flags, uint64(ref))
	cs.sidecars[col].Append(packed | flags)

	if float64(rm.Len()) > pc.poolThreshold*float64(pc.rowEstimate) {
		pc.types.Promote(col, tape.String)
	}
	return nil
}

// appendTyped writes a committed typed cell. Typed columns keep flags only
// in the poslen slot; the packed offsets live in the sidecar until a string
// fallback needs them.
func (cs *chunkState) appendTyped(pc *parseContext, col int, kind tape.TypeCode, value uint64, packed, flags uint64) {
	if kind == tape.Int {
		flags |= tape.WasIntBit
	}
	switch kind {
	case tape.String:
		cs.tapes[col].Append(packed|flags, 0)
	case tape.Pool:
		// unreachable, pool cells go through writePool
		cs.tapes[col].Append(packed|flags, value)
	default:
		cs.tapes[col].Append(flags, value)
	}
	cs.sidecars[col].Append(packed | flags)
}

// probe attempts the inference order on an uncommitted cell: int, float,
// date, datetime, time, bool, then string. A configured date format replaces
// the three temporal probes with its own kind.
func probe(content []byte, fopts *fieldparse.Options) (tape.TypeCode, uint64) {
	if v, ok := fieldparse.ParseInt(content); ok {
		return tape.Int, uint64(v)
	}
	if v, ok := fieldparse.ParseFloat(content, fopts.Decimal); ok {
		return tape.Float, math.Float64bits(v)
	}

	if fopts.DateFormat != "" {
		kind := fieldparse.DateFormatKind(fopts.DateFormat)
		if v, ok := parseAs(kind, content, fopts); ok {
			return kind, v
		}
	} else {
		if v, ok := fieldparse.ParseDate(content, fopts); ok {
			return tape.Date, uint64(v)
		}
		if v, ok := fieldparse.ParseDateTime(content, fopts); ok {
			return tape.DateTime, uint64(v)
		}
		if v, ok := fieldparse.ParseTime(content, fopts); ok {
			return tape.Time, uint64(v)
		}
	}

	if v, ok := fieldparse.ParseBool(content, fopts); ok {
		if v {
			return tape.Bool, 1
		}
		return tape.Bool, 0
	}
	return tape.String, 0
}

// parseAs converts content to the value-slot bits of kind.
func parseAs(kind tape.TypeCode, content []byte, fopts *fieldparse.Options) (uint64, bool) {
	switch kind.Base() {
	case tape.Int:
		if v, ok := fieldparse.ParseInt(content); ok {
			return uint64(v), true
		}
	case tape.Float:
		if v, ok := fieldparse.ParseFloat(content, fopts.Decimal); ok {
			return math.Float64bits(v), true
		}
	case tape.Date:
		if v, ok := fieldparse.ParseDate(content, fopts); ok {
			return uint64(v), true
		}
	case tape.DateTime:
		if v, ok := fieldparse.ParseDateTime(content, fopts); ok {
			return uint64(v), true
		}
	case tape.Time:
		if v, ok := fieldparse.ParseTime(content, fopts); ok {
			return uint64(v), true
		}
	case tape.Bool:
		if v, ok := fieldparse.ParseBool(content, fopts); ok {
			if v {
				return 1, true
			}
			return 0, true
		}
	case tape.String, tape.Pool:
		return 0, true
	}
	return 0, false
}
