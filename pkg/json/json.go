// Package json wraps goccy/go-json for CLI output: plain marshalling plus a
// streaming encoder that emits either NDJSON or a single JSON array without
// materializing the whole document.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent encodes v with indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// StreamingEncoder writes a sequence of values as either one JSON document
// per line or a single JSON array. Row dumps go through this so large tables
// stream instead of building one giant value in memory.
type StreamingEncoder struct {
	w       io.Writer
	enc     *gojson.Encoder
	array   bool
	pretty  bool
	started bool
	err     error
}

// NewStreamingEncoder returns an encoder over w. With array true the output
// is wrapped in [ ... ] with comma separators; otherwise each Encode emits
// one newline-terminated document.
func NewStreamingEncoder(w io.Writer, array bool) *StreamingEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)

	se := &StreamingEncoder{w: w, enc: enc, array: array}
	if array {
		se.write([]byte{'['})
	}
	return se
}

// SetPretty turns on indentation for subsequent values.
func (se *StreamingEncoder) SetPretty(pretty bool, indent string) {
	se.pretty = pretty
	if pretty {
		se.enc.SetIndent("", indent)
	}
}

// Encode writes one value, inserting the array separator when needed.
func (se *StreamingEncoder) Encode(v any) error {
	if se.err != nil {
		return se.err
	}
	if se.array && se.started {
		se.write([]byte{','})
		if se.pretty {
			se.write([]byte{'\n'})
		}
	}
	se.started = true
	if err := se.enc.Encode(v); err != nil {
		se.err = err
	}
	return se.err
}

// Close terminates the array form. For NDJSON it is a no-op.
func (se *StreamingEncoder) Close() error {
	if se.err != nil {
		return se.err
	}
	if se.array {
		if se.pretty {
			se.write([]byte{'\n'})
		}
		se.write([]byte{']', '\n'})
	}
	return se.err
}

func (se *StreamingEncoder) write(p []byte) {
	if se.err == nil {
		_, se.err = se.w.Write(p)
	}
}

var bufferPool = sync.Pool{
	New: func() any { return bytes.NewBuffer(make([]byte, 0, 4096)) },
}

// GetBuffer returns an empty pooled buffer.
func GetBuffer() *bytes.Buffer {
	b := bufferPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// PutBuffer recycles buf unless it has grown past 1 MiB.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return
	}
	bufferPool.Put(buf)
}
