package reader

import (
	"math"
	"time"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/fieldparse"
	"github.com/ajitpratap0/comet/pkg/source"
	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// File is a parsed table: named, typed columns with random row access. Cell
// bytes for string columns are slices of the retained input buffer, so the
// File must stay open while returned strings from zero-copy paths are in use.
type File struct {
	names []string
	types []tape.TypeCode
	tapes []*tape.Tape
	refs  [][]string
	rows  int

	data     []byte
	escape   byte
	buf      *source.Buffer
	warnings []Warning
}

// Rows returns the number of data rows.
func (f *File) Rows() int {
	return f.rows
}

// Cols returns the number of columns.
func (f *File) Cols() int {
	return len(f.names)
}

// Names returns the column names in order.
func (f *File) Names() []string {
	return f.names
}

// Name returns the name of column col.
func (f *File) Name(col int) string {
	return f.names[col]
}

// Type returns the logical type name of column col. Pooled columns report as
// string; the pooling is a storage detail.
func (f *File) Type(col int) string {
	t := f.types[col]
	if t.Base() == tape.Pool {
		return tape.String.Kind()
	}
	return t.Kind()
}

// HasMissing reports whether column col contains any missing cell.
func (f *File) HasMissing(col int) bool {
	return f.types[col].HasMissing()
}

// Warnings returns the non-fatal diagnostics raised during the parse.
func (f *File) Warnings() []Warning {
	return f.warnings
}

// Column looks up a column index by name.
func (f *File) Column(name string) (int, bool) {
	for i, n := range f.names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Close releases the input buffer. Views and zero-copy strings obtained from
// the File are invalid afterwards.
func (f *File) Close() error {
	if f.buf != nil {
		err := f.buf.Close()
		f.buf = nil
		f.data = nil
		return err
	}
	return nil
}

func (f *File) checkBase(col int, want tape.TypeCode) error {
	got := f.types[col].Base()
	if got != want {
		return cometerrors.Newf(cometerrors.ErrorTypeType,
			"column %q is %s, not %s", f.names[col], f.Type(col), want.Kind())
	}
	return nil
}

// IntView reads an int column.
type IntView struct {
	t *tape.Tape
}

// Ints returns a view over int column col.
func (f *File) Ints(col int) (*IntView, error) {
	if err := f.checkBase(col, tape.Int); err != nil {
		return nil, err
	}
	return &IntView{t: f.tapes[col]}, nil
}

// Len returns the number of rows.
func (v *IntView) Len() int {
	return v.t.Rows()
}

// Value returns the cell at row, with ok=false for missing cells.
func (v *IntView) Value(row int) (int64, bool) {
	if tape.IsMissing(v.t.Poslen(row)) {
		return 0, false
	}
	return int64(v.t.Value(row)), true
}

// FloatView reads a float column. Cells written as integers by a worker that
// finished before the column promoted still hold int bits; the was-int flag
// routes them through the conversion.
type FloatView struct {
	t *tape.Tape
}

// Floats returns a view over float column col.
func (f *File) Floats(col int) (*FloatView, error) {
	if err := f.checkBase(col, tape.Float); err != nil {
		return nil, err
	}
	return &FloatView{t: f.tapes[col]}, nil
}

// Len returns the number of rows.
func (v *FloatView) Len() int {
	return v.t.Rows()
}

// Value returns the cell at row, with ok=false for missing cells.
func (v *FloatView) Value(row int) (float64, bool) {
	slot := v.t.Poslen(row)
	if tape.IsMissing(slot) {
		return 0, false
	}
	raw := v.t.Value(row)
	if tape.WasInt(slot) {
		return float64(int64(raw)), true
	}
	return math.Float64frombits(raw), true
}

// BoolView reads a bool column.
type BoolView struct {
	t *tape.Tape
}

// Bools returns a view over bool column col.
func (f *File) Bools(col int) (*BoolView, error) {
	if err := f.checkBase(col, tape.Bool); err != nil {
		return nil, err
	}
	return &BoolView{t: f.tapes[col]}, nil
}

// Len returns the number of rows.
func (v *BoolView) Len() int {
	return v.t.Rows()
}

// Value returns the cell at row, with ok=false for missing cells.
func (v *BoolView) Value(row int) (bool, bool) {
	if tape.IsMissing(v.t.Poslen(row)) {
		return false, false
	}
	return v.t.Value(row) != 0, true
}

// DateView reads a date column stored as days since the Unix epoch.
type DateView struct {
	t *tape.Tape
}

// Dates returns a view over date column col.
func (f *File) Dates(col int) (*DateView, error) {
	if err := f.checkBase(col, tape.Date); err != nil {
		return nil, err
	}
	return &DateView{t: f.tapes[col]}, nil
}

// Len returns the number of rows.
func (v *DateView) Len() int {
	return v.t.Rows()
}

// Days returns the raw epoch-day value at row.
func (v *DateView) Days(row int) (int64, bool) {
	if tape.IsMissing(v.t.Poslen(row)) {
		return 0, false
	}
	return int64(v.t.Value(row)), true
}

// Value returns the cell at row as a UTC midnight time.
func (v *DateView) Value(row int) (time.Time, bool) {
	days, ok := v.Days(row)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(days*86400, 0).UTC(), true
}

// DateTimeView reads a datetime column stored as microseconds since the Unix
// epoch.
type DateTimeView struct {
	t *tape.Tape
}

// DateTimes returns a view over datetime column col.
func (f *File) DateTimes(col int) (*DateTimeView, error) {
	if err := f.checkBase(col, tape.DateTime); err != nil {
		return nil, err
	}
	return &DateTimeView{t: f.tapes[col]}, nil
}

// Len returns the number of rows.
func (v *DateTimeView) Len() int {
	return v.t.Rows()
}

// Micros returns the raw epoch-microsecond value at row.
func (v *DateTimeView) Micros(row int) (int64, bool) {
	if tape.IsMissing(v.t.Poslen(row)) {
		return 0, false
	}
	return int64(v.t.Value(row)), true
}

// Value returns the cell at row as a UTC time.
func (v *DateTimeView) Value(row int) (time.Time, bool) {
	us, ok := v.Micros(row)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMicro(us).UTC(), true
}

// TimeView reads a time-of-day column stored as nanoseconds since midnight.
type TimeView struct {
	t *tape.Tape
}

// Times returns a view over time column col.
func (f *File) Times(col int) (*TimeView, error) {
	if err := f.checkBase(col, tape.Time); err != nil {
		return nil, err
	}
	return &TimeView{t: f.tapes[col]}, nil
}

// Len returns the number of rows.
func (v *TimeView) Len() int {
	return v.t.Rows()
}

// Value returns the cell at row as a duration past midnight.
func (v *TimeView) Value(row int) (time.Duration, bool) {
	if tape.IsMissing(v.t.Poslen(row)) {
		return 0, false
	}
	return time.Duration(v.t.Value(row)), true
}

// StringView reads a string column. Plain string cells slice the retained
// input buffer; escaped cells unescape into a fresh allocation. Pooled
// columns resolve through the flattened pool instead.
type StringView struct {
	t      *tape.Tape
	data   []byte
	refs   []string
	escape byte
}

// Strings returns a view over string column col. Pooled columns qualify;
// their logical type is string.
func (f *File) Strings(col int) (*StringView, error) {
	base := f.types[col].Base()
	if base != tape.String && base != tape.Pool && base != tape.MissingType {
		return nil, cometerrors.Newf(cometerrors.ErrorTypeType,
			"column %q is %s, not string", f.names[col], f.Type(col))
	}
	return &StringView{
		t:      f.tapes[col],
		data:   f.data,
		refs:   f.refs[col],
		escape: f.escape,
	}, nil
}

// Len returns the number of rows.
func (v *StringView) Len() int {
	return v.t.Rows()
}

// Value returns the cell at row, with ok=false for missing cells.
func (v *StringView) Value(row int) (string, bool) {
	slot := v.t.Poslen(row)
	if tape.IsMissing(slot) {
		return "", false
	}
	if v.refs != nil {
		ref := v.t.Value(row)
		if ref == 0 {
			return "", false
		}
		return v.refs[ref-1], true
	}
	pos := tape.PoslenPos(slot)
	n := tape.PoslenLen(slot)
	content := v.data[pos : pos+n]
	if tape.HasEscape(slot) {
		b := fieldparse.Unescape(content, v.escape)
		s := string(b.Bytes())
		cometstrings.PutBuilder(b)
		return s, true
	}
	return cometstrings.BytesToString(content), true
}

// Pool returns the flattened string pool of column col, or nil when the
// column is not pooled.
func (f *File) Pool(col int) []string {
	return f.refs[col]
}

// Get returns the cell at (col, row) boxed as a Go value, with ok=false for
// missing cells. Row access code paths that know the column type should use
// the typed views instead.
func (f *File) Get(col, row int) (interface{}, bool) {
	t := f.tapes[col]
	slot := t.Poslen(row)
	if tape.IsMissing(slot) {
		return nil, false
	}

	switch f.types[col].Base() {
	case tape.Int:
		return int64(t.Value(row)), true
	case tape.Float:
		raw := t.Value(row)
		if tape.WasInt(slot) {
			return float64(int64(raw)), true
		}
		return math.Float64frombits(raw), true
	case tape.Bool:
		return t.Value(row) != 0, true
	case tape.Date:
		return time.Unix(int64(t.Value(row))*86400, 0).UTC(), true
	case tape.DateTime:
		return time.UnixMicro(int64(t.Value(row))).UTC(), true
	case tape.Time:
		return time.Duration(t.Value(row)), true
	case tape.Pool:
		ref := t.Value(row)
		if ref == 0 {
			return nil, false
		}
		return f.refs[col][ref-1], true
	case tape.String:
		pos := tape.PoslenPos(slot)
		n := tape.PoslenLen(slot)
		content := f.data[pos : pos+n]
		if tape.HasEscape(slot) {
			b := fieldparse.Unescape(content, f.escape)
			s := string(b.Bytes())
			cometstrings.PutBuilder(b)
			return s, true
		}
		return cometstrings.BytesToString(content), true
	default:
		return nil, false
	}
}
