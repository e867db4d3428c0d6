// Package arrowconv converts parsed files to Apache Arrow records. Missing
// cells become Arrow nulls; pooled string columns materialize as plain
// string arrays.
package arrowconv

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/reader"
)

// Schema maps the file's columns onto an Arrow schema. Columns that never
// produced a value map to nullable strings.
func Schema(f *reader.File) *arrow.Schema {
	fields := make([]arrow.Field, f.Cols())
	for col := 0; col < f.Cols(); col++ {
		fields[col] = arrow.Field{
			Name:     f.Name(col),
			Type:     arrowType(f.Type(col)),
			Nullable: true,
		}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(kind string) arrow.DataType {
	switch kind {
	case "int":
		return arrow.PrimitiveTypes.Int64
	case "float":
		return arrow.PrimitiveTypes.Float64
	case "bool":
		return arrow.FixedWidthTypes.Boolean
	case "date":
		return arrow.FixedWidthTypes.Date32
	case "datetime":
		return arrow.FixedWidthTypes.Timestamp_us
	case "time":
		return arrow.FixedWidthTypes.Time64ns
	default:
		return arrow.BinaryTypes.String
	}
}

// Record builds one Arrow record covering every row of f. The caller owns
// the returned record and must Release it.
func Record(f *reader.File) (arrow.Record, error) {
	schema := Schema(f)
	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()

	for col := 0; col < f.Cols(); col++ {
		if err := appendColumn(builder.Field(col), f, col); err != nil {
			return nil, err
		}
	}
	return builder.NewRecord(), nil
}

func appendColumn(fb array.Builder, f *reader.File, col int) error {
	rows := f.Rows()
	switch b := fb.(type) {
	case *array.Int64Builder:
		v, err := f.Ints(col)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			if x, ok := v.Value(row); ok {
				b.Append(x)
			} else {
				b.AppendNull()
			}
		}
	case *array.Float64Builder:
		v, err := f.Floats(col)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			if x, ok := v.Value(row); ok {
				b.Append(x)
			} else {
				b.AppendNull()
			}
		}
	case *array.BooleanBuilder:
		v, err := f.Bools(col)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			if x, ok := v.Value(row); ok {
				b.Append(x)
			} else {
				b.AppendNull()
			}
		}
	case *array.Date32Builder:
		v, err := f.Dates(col)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			if days, ok := v.Days(row); ok {
				b.Append(arrow.Date32(days))
			} else {
				b.AppendNull()
			}
		}
	case *array.TimestampBuilder:
		v, err := f.DateTimes(col)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			if us, ok := v.Micros(row); ok {
				b.Append(arrow.Timestamp(us))
			} else {
				b.AppendNull()
			}
		}
	case *array.Time64Builder:
		v, err := f.Times(col)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			if d, ok := v.Value(row); ok {
				b.Append(arrow.Time64(d.Nanoseconds()))
			} else {
				b.AppendNull()
			}
		}
	case *array.StringBuilder:
		appendStrings(b, f, col, rows)
	default:
		return cometerrors.Newf(cometerrors.ErrorTypeInternal,
			"no arrow builder for column %q of type %s", f.Name(col), f.Type(col))
	}
	return nil
}

func appendStrings(b *array.StringBuilder, f *reader.File, col, rows int) {
	v, err := f.Strings(col)
	if err != nil {
		// Columns that produced no values have no string view; every cell
		// is null.
		for row := 0; row < rows; row++ {
			b.AppendNull()
		}
		return
	}
	for row := 0; row < rows; row++ {
		if s, ok := v.Value(row); ok {
			b.Append(s)
		} else {
			b.AppendNull()
		}
	}
}

// WriteIPC writes f as a single-batch Arrow IPC file stream.
func WriteIPC(w io.Writer, f *reader.File) error {
	rec, err := Record(f)
	if err != nil {
		return err
	}
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return cometerrors.Wrap(err, cometerrors.ErrorTypeFile, "create arrow writer")
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return cometerrors.Wrap(err, cometerrors.ErrorTypeFile, "write arrow record")
	}
	return fw.Close()
}
