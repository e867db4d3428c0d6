// Package reader is the parsing engine: layout detection, type inference,
// tape building, string pooling, and the parallel parse coordinator. The
// entry point is ParseFile.
package reader

import (
	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/fieldparse"
	"github.com/ajitpratap0/comet/pkg/source"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// Tri is a three-valued switch for features that default to automatic.
type Tri int

const (
	// Auto lets the engine decide
	Auto Tri = iota
	// On forces the feature on
	On
	// Off forces the feature off
	Off
)

// Options configures a parse. The zero value plus DefaultOptions' fills is a
// standard CSV read: header on row 1, auto delimiter, double-quote quoting,
// empty string as missing.
type Options struct {
	// Layout
	HeaderRow        int      // 1-based header row; 0 means synthetic Column1, Column2, ...
	HeaderNames      []string // explicit names; when set HeaderRow is ignored
	NormalizeNames   bool
	DataRow          int // 1-based first data row; 0 derives it from the header position
	SkipTo           int // overrides DataRow when set
	FooterSkip       int
	Limit            int
	Transpose        bool
	Comment          string
	UseMmap          source.MmapMode
	IgnoreEmptyLines bool
	Threaded         Tri
	Workers          int

	// Lexical
	MissingStrings []string
	MissingString  string
	Delim          string // empty means auto-detect; may be multi-byte
	IgnoreRepeated bool
	QuoteByte      byte // sets both quotes when the open/close pair is not given
	OpenQuote      byte
	CloseQuote     byte
	Escape         byte
	Decimal        byte
	TrueStrings    []string
	FalseStrings   []string
	DateFormat     string

	// Types
	Type         string            // one type name applied to every column
	Types        map[string]string // per-column pins keyed by name
	TypesByIndex []string          // per-column pins by position; empty entries stay inferred
	TypeMap      map[string]string // inferred-type rewrite, applied at commit
	Pool         float64           // 0 disables pooling; (0,1] is the cardinality fraction
	Strict       bool

	SilenceWarnings bool

	headerDisabled bool
}

// DefaultOptions returns the standard CSV configuration.
func DefaultOptions() *Options {
	return &Options{
		HeaderRow:        1,
		IgnoreEmptyLines: true,
		MissingStrings:   []string{""},
		QuoteByte:        '"',
		Escape:           '"',
		Decimal:          '.',
		TrueStrings:      []string{"true", "True", "TRUE", "T"},
		FalseStrings:     []string{"false", "False", "FALSE", "F"},
	}
}

// typeNames maps the option-level type names onto type codes.
var typeNames = map[string]tape.TypeCode{
	"int":      tape.Int,
	"int64":    tape.Int,
	"float":    tape.Float,
	"float64":  tape.Float,
	"date":     tape.Date,
	"datetime": tape.DateTime,
	"time":     tape.Time,
	"bool":     tape.Bool,
	"string":   tape.String,
}

func lookupType(name string) (tape.TypeCode, error) {
	t, ok := typeNames[name]
	if !ok {
		return 0, cometerrors.Newf(cometerrors.ErrorTypeType, "unsupported column type %q", name)
	}
	return t, nil
}

// fill applies defaults into unset fields so downstream code never branches
// on zero values.
func (o *Options) fill() {
	def := DefaultOptions()
	if o.HeaderRow == 0 && o.HeaderNames == nil && !o.headerDisabled {
		o.HeaderRow = def.HeaderRow
	}
	if o.MissingStrings == nil {
		if o.MissingString != "" {
			o.MissingStrings = []string{o.MissingString}
		} else {
			o.MissingStrings = def.MissingStrings
		}
	} else if o.MissingString != "" {
		o.MissingStrings = append(o.MissingStrings, o.MissingString)
	}
	if o.QuoteByte == 0 && o.OpenQuote == 0 {
		o.QuoteByte = def.QuoteByte
	}
	if o.OpenQuote == 0 {
		o.OpenQuote = o.QuoteByte
	}
	if o.CloseQuote == 0 {
		o.CloseQuote = o.OpenQuote
	}
	if o.Escape == 0 {
		o.Escape = def.Escape
	}
	if o.Decimal == 0 {
		o.Decimal = def.Decimal
	}
	if o.TrueStrings == nil {
		o.TrueStrings = def.TrueStrings
	}
	if o.FalseStrings == nil {
		o.FalseStrings = def.FalseStrings
	}
}

// NoHeader configures o for input without a header row; synthetic names
// Column1, Column2, ... are generated instead.
func (o *Options) NoHeader() *Options {
	o.HeaderRow = 0
	o.headerDisabled = true
	return o
}

// Validate rejects configurations that cannot parse. All violations surface
// before any input is read.
func (o *Options) Validate() error {
	for i := 0; i < len(o.Delim); i++ {
		switch o.Delim[i] {
		case '\r', '\n', 0:
			return cometerrors.New(cometerrors.ErrorTypeDelimiter,
				"delimiter may not contain carriage return, newline, or NUL").
				WithDetail("delim", o.Delim)
		}
	}
	if o.IgnoreRepeated && o.Delim == "" {
		return cometerrors.New(cometerrors.ErrorTypeDelimiter,
			"ignore_repeated requires an explicit delimiter")
	}

	if o.Type != "" {
		if _, err := lookupType(o.Type); err != nil {
			return err
		}
	}
	for _, name := range o.Types {
		if _, err := lookupType(name); err != nil {
			return err
		}
	}
	for _, name := range o.TypesByIndex {
		if name == "" {
			continue
		}
		if _, err := lookupType(name); err != nil {
			return err
		}
	}
	for from, to := range o.TypeMap {
		if _, err := lookupType(from); err != nil {
			return err
		}
		if _, err := lookupType(to); err != nil {
			return err
		}
	}
	if o.Pool < 0 || o.Pool > 1 {
		return cometerrors.Newf(cometerrors.ErrorTypeConfig, "pool must be in [0,1], got %v", o.Pool)
	}

	dataRow := o.SkipTo
	if dataRow == 0 {
		dataRow = o.DataRow
	}
	if o.HeaderNames == nil && dataRow != 0 && dataRow <= o.HeaderRow {
		return cometerrors.Newf(cometerrors.ErrorTypeHeader,
			"data row %d must come after header row %d", dataRow, o.HeaderRow)
	}
	return nil
}

// fieldOptions builds the scanner configuration once per parse. delim is the
// resolved delimiter after auto-detection.
func (o *Options) fieldOptions(delim []byte) *fieldparse.Options {
	sentinels := make([][]byte, len(o.MissingStrings))
	for i, s := range o.MissingStrings {
		sentinels[i] = []byte(s)
	}
	trues := make([][]byte, len(o.TrueStrings))
	for i, s := range o.TrueStrings {
		trues[i] = []byte(s)
	}
	falses := make([][]byte, len(o.FalseStrings))
	for i, s := range o.FalseStrings {
		falses[i] = []byte(s)
	}

	trim := true
	if len(delim) == 1 && (delim[0] == ' ' || delim[0] == '\t') {
		trim = false
	}

	return &fieldparse.Options{
		Sentinels:      sentinels,
		Wspace1:        ' ',
		Wspace2:        '\t',
		OpenQuote:      o.OpenQuote,
		CloseQuote:     o.CloseQuote,
		Escape:         o.Escape,
		Delim:          delim,
		Decimal:        o.Decimal,
		TrueStrings:    trues,
		FalseStrings:   falses,
		DateFormat:     o.DateFormat,
		IgnoreRepeated: o.IgnoreRepeated,
		TrimWhitespace: trim,
	}
}

// pinnedTypes resolves the user's type pins into a per-column vector with the
// User flag set. names are the resolved column names.
func (o *Options) pinnedTypes(names []string) ([]tape.TypeCode, error) {
	pins := make([]tape.TypeCode, len(names))

	if o.Type != "" {
		t, err := lookupType(o.Type)
		if err != nil {
			return nil, err
		}
		for i := range pins {
			pins[i] = t | tape.FlagUser
		}
	}
	for i, name := range o.TypesByIndex {
		if name == "" || i >= len(pins) {
			continue
		}
		t, err := lookupType(name)
		if err != nil {
			return nil, err
		}
		pins[i] = t | tape.FlagUser
	}
	for col, name := range o.Types {
		t, err := lookupType(name)
		if err != nil {
			return nil, err
		}
		found := false
		for i, n := range names {
			if n == col {
				pins[i] = t | tape.FlagUser
				found = true
				break
			}
		}
		if !found {
			return nil, cometerrors.Newf(cometerrors.ErrorTypeType, "type pin for unknown column %q", col)
		}
	}
	return pins, nil
}

// typeRewrites resolves the TypeMap option.
func (o *Options) typeRewrites() (map[tape.TypeCode]tape.TypeCode, error) {
	if len(o.TypeMap) == 0 {
		return nil, nil
	}
	m := make(map[tape.TypeCode]tape.TypeCode, len(o.TypeMap))
	for from, to := range o.TypeMap {
		f, err := lookupType(from)
		if err != nil {
			return nil, err
		}
		t, err := lookupType(to)
		if err != nil {
			return nil, err
		}
		m[f] = t
	}
	return m, nil
}
