package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/comet/pkg/reader"
	"github.com/ajitpratap0/comet/pkg/source"
)

// parseFlags holds the command-line surface of the parse options. Flags that
// the user set explicitly override values from the options file.
type parseFlags struct {
	fs *pflag.FlagSet

	optionsFile string

	delim          string
	noHeader       bool
	headerRow      int
	dataRow        int
	footerSkip     int
	limit          int
	transpose      bool
	comment        string
	normalizeNames bool
	noMmap         bool
	singleThread   bool
	workers        int

	missing    []string
	decimal    string
	dateFormat string

	typeAll string
	types   []string
	pool    float64
	strict  bool
	quiet   bool
}

func (pf *parseFlags) register(fs *pflag.FlagSet) {
	pf.fs = fs

	fs.StringVar(&pf.optionsFile, "options", "", "Path to an options file (YAML or JSON)")

	fs.StringVar(&pf.delim, "delim", "", "Field delimiter; empty auto-detects")
	fs.BoolVar(&pf.noHeader, "no-header", false, "Treat the first row as data and synthesize column names")
	fs.IntVar(&pf.headerRow, "header-row", 1, "1-based header row")
	fs.IntVar(&pf.dataRow, "data-row", 0, "1-based first data row; 0 derives it from the header")
	fs.IntVar(&pf.footerSkip, "footer-skip", 0, "Number of trailing rows to drop")
	fs.IntVar(&pf.limit, "limit", 0, "Stop after this many rows; 0 reads everything")
	fs.BoolVar(&pf.transpose, "transpose", false, "Read each line as one column")
	fs.StringVar(&pf.comment, "comment", "", "Lines starting with this prefix are skipped")
	fs.BoolVar(&pf.normalizeNames, "normalize-names", false, "Map column names to identifiers")
	fs.BoolVar(&pf.noMmap, "no-mmap", false, "Read files into memory instead of mapping them")
	fs.BoolVar(&pf.singleThread, "single-thread", false, "Disable parallel parsing")
	fs.IntVar(&pf.workers, "workers", 0, "Worker count for parallel parsing; 0 uses all CPUs")

	fs.StringSliceVar(&pf.missing, "missing", nil, "Strings treated as missing values")
	fs.StringVar(&pf.decimal, "decimal", ".", "Decimal separator for float parsing")
	fs.StringVar(&pf.dateFormat, "date-format", "", "Go reference layout for temporal columns")

	fs.StringVar(&pf.typeAll, "type", "", "Pin every column to one type")
	fs.StringSliceVar(&pf.types, "types", nil, "Per-column type pins as name=type")
	fs.Float64Var(&pf.pool, "pool", 0, "String pool cardinality fraction in (0,1]; 0 disables pooling")
	fs.BoolVar(&pf.strict, "strict", false, "Abort when a value does not parse as its pinned type")
	fs.BoolVar(&pf.quiet, "quiet", false, "Suppress parse warnings")
}

// fileOptions is the options-file schema read through viper.
type fileOptions struct {
	HeaderRow      int               `mapstructure:"header_row"`
	HeaderNames    []string          `mapstructure:"header_names"`
	NormalizeNames bool              `mapstructure:"normalize_names"`
	DataRow        int               `mapstructure:"data_row"`
	FooterSkip     int               `mapstructure:"footer_skip"`
	Limit          int               `mapstructure:"limit"`
	Transpose      bool              `mapstructure:"transpose"`
	Comment        string            `mapstructure:"comment"`
	Workers        int               `mapstructure:"workers"`
	Delim          string            `mapstructure:"delim"`
	Missing        []string          `mapstructure:"missing"`
	Decimal        string            `mapstructure:"decimal"`
	DateFormat     string            `mapstructure:"date_format"`
	Type           string            `mapstructure:"type"`
	Types          map[string]string `mapstructure:"types"`
	TypeMap        map[string]string `mapstructure:"type_map"`
	Pool           float64           `mapstructure:"pool"`
	Strict         bool              `mapstructure:"strict"`
}

// options resolves the final parse options: defaults, then the options file,
// then explicitly set flags.
func (pf *parseFlags) options() (*reader.Options, error) {
	opts := reader.DefaultOptions()

	if pf.optionsFile != "" {
		v := viper.New()
		v.SetConfigFile(pf.optionsFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read options file: %w", err)
		}
		var fo fileOptions
		if err := v.UnmarshalExact(&fo); err != nil {
			return nil, fmt.Errorf("parse options file: %w", err)
		}
		applyFileOptions(opts, &fo)
	}

	set := pf.fs.Changed

	if set("no-header") && pf.noHeader {
		opts.NoHeader()
	} else if set("header-row") {
		opts.HeaderRow = pf.headerRow
	}
	if set("data-row") {
		opts.DataRow = pf.dataRow
	}
	if set("footer-skip") {
		opts.FooterSkip = pf.footerSkip
	}
	if set("limit") {
		opts.Limit = pf.limit
	} else if pf.limit > 0 && opts.Limit == 0 {
		opts.Limit = pf.limit
	}
	if set("transpose") {
		opts.Transpose = pf.transpose
	}
	if set("comment") {
		opts.Comment = pf.comment
	}
	if set("normalize-names") {
		opts.NormalizeNames = pf.normalizeNames
	}
	if pf.noMmap {
		opts.UseMmap = source.MmapOff
	}
	if pf.singleThread {
		opts.Threaded = reader.Off
	}
	if set("workers") {
		opts.Workers = pf.workers
	}
	if set("delim") {
		opts.Delim = pf.delim
	}
	if set("missing") {
		opts.MissingStrings = pf.missing
	}
	if set("decimal") {
		if len(pf.decimal) != 1 {
			return nil, fmt.Errorf("decimal separator must be one byte, got %q", pf.decimal)
		}
		opts.Decimal = pf.decimal[0]
	}
	if set("date-format") {
		opts.DateFormat = pf.dateFormat
	}
	if set("type") {
		opts.Type = pf.typeAll
	}
	if set("types") {
		if opts.Types == nil {
			opts.Types = make(map[string]string, len(pf.types))
		}
		for _, pin := range pf.types {
			name, typ, ok := strings.Cut(pin, "=")
			if !ok {
				return nil, fmt.Errorf("type pin %q is not name=type", pin)
			}
			opts.Types[name] = typ
		}
	}
	if set("pool") {
		opts.Pool = pf.pool
	}
	if set("strict") {
		opts.Strict = pf.strict
	}
	if pf.quiet {
		opts.SilenceWarnings = true
	}

	return opts, nil
}

func applyFileOptions(opts *reader.Options, fo *fileOptions) {
	if fo.HeaderRow != 0 {
		opts.HeaderRow = fo.HeaderRow
	}
	if fo.HeaderNames != nil {
		opts.HeaderNames = fo.HeaderNames
	}
	opts.NormalizeNames = opts.NormalizeNames || fo.NormalizeNames
	if fo.DataRow != 0 {
		opts.DataRow = fo.DataRow
	}
	if fo.FooterSkip != 0 {
		opts.FooterSkip = fo.FooterSkip
	}
	if fo.Limit != 0 {
		opts.Limit = fo.Limit
	}
	opts.Transpose = opts.Transpose || fo.Transpose
	if fo.Comment != "" {
		opts.Comment = fo.Comment
	}
	if fo.Workers != 0 {
		opts.Workers = fo.Workers
	}
	if fo.Delim != "" {
		opts.Delim = fo.Delim
	}
	if fo.Missing != nil {
		opts.MissingStrings = fo.Missing
	}
	if fo.Decimal != "" {
		opts.Decimal = fo.Decimal[0]
	}
	if fo.DateFormat != "" {
		opts.DateFormat = fo.DateFormat
	}
	if fo.Type != "" {
		opts.Type = fo.Type
	}
	if fo.Types != nil {
		opts.Types = fo.Types
	}
	if fo.TypeMap != nil {
		opts.TypeMap = fo.TypeMap
	}
	if fo.Pool != 0 {
		opts.Pool = fo.Pool
	}
	opts.Strict = opts.Strict || fo.Strict
}
