// Package comet is a high-performance reader for delimited text (CSV, TSV,
// WSV and friends) that parses files into typed, columnar, random-access
// tables.
//
// Comet detects the delimiter and the type of every column, reads large
// files through memory mapping, and splits parsing across CPU cores. Cell
// storage is a compact tape of 16-byte slots, so string cells are slices of
// the input buffer rather than allocations.
//
// # Quick Start
//
// Parse a file and read a typed column:
//
//	f, err := reader.ParseFile(ctx, "trades.csv", nil)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	col, _ := f.Column("price")
//	prices, err := f.Floats(col)
//	for row := 0; row < f.Rows(); row++ {
//	    if v, ok := prices.Value(row); ok {
//	        total += v
//	    }
//	}
//
// # Key Packages
//
//	pkg/reader      - Parsing engine: layout detection, inference, parallel parse
//	pkg/fieldparse  - Field scanner and typed value parsers
//	pkg/tape        - Columnar cell storage, type lattice, string pools
//	pkg/source      - Input loading: paths, bytes, streams, sub-processes
//	pkg/compression - Transparent gzip/zstd/lz4/snappy decompression
//	pkg/arrowconv   - Conversion to Apache Arrow records and IPC files
//	pkg/observability - Prometheus metrics and OpenTelemetry tracing
//
// # Types
//
// Columns infer as int, float, bool, date, datetime, time of day, or string.
// Integer columns widen to float when a fractional value appears; any
// unparseable value demotes the column to string without losing earlier
// rows. Low-cardinality string columns can be dictionary-pooled.
package comet
