// Package strings provides zero-copy byte/string conversions and a pooled
// byte builder. Cell views slice strings straight out of the input buffer,
// so these conversions sit on the hottest read path.
package strings

import (
	"sync"
	"unsafe"
)

// BytesToString returns a string sharing b's memory. The caller must not
// mutate b while the string is live.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToBytes returns a byte slice sharing s's memory. The returned slice
// must be treated as read-only.
func StringToBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Clone returns a copy of s backed by fresh memory.
func Clone(s string) string {
	if s == "" {
		return ""
	}
	return string(append([]byte(nil), s...))
}

// CloneBytes copies b into a freshly allocated string. Field bytes sliced
// out of a memory-mapped buffer must be cloned before they outlive the
// mapping.
func CloneBytes(b []byte) string {
	return string(b)
}

// Builder accumulates bytes and hands them back as a zero-copy string. Unlike
// the standard library builder it can be reset and pooled.
type Builder struct {
	buf []byte
}

// NewBuilder returns a builder with the given initial capacity.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

func (b *Builder) WriteBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *Builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the accumulated bytes as a string without copying. The
// result is invalidated by further writes or Reset.
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Bytes returns the underlying buffer.
func (b *Builder) Bytes() []byte {
	return b.buf
}

func (b *Builder) Len() int { return len(b.buf) }

func (b *Builder) Cap() int { return cap(b.buf) }

// Reset empties the builder, keeping its capacity.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Grow ensures space for at least n more bytes.
func (b *Builder) Grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}
	grown := make([]byte, len(b.buf), len(b.buf)+n+cap(b.buf))
	copy(grown, b.buf)
	b.buf = grown
}

// Unescaping quoted fields is hot when inputs carry embedded quotes, so
// builders are recycled rather than allocated per field.
var builderPool = sync.Pool{
	New: func() any { return NewBuilder(256) },
}

// GetBuilder returns an empty pooled builder.
func GetBuilder() *Builder {
	b := builderPool.Get().(*Builder)
	b.Reset()
	return b
}

// PutBuilder recycles b. Nil is ignored.
func PutBuilder(b *Builder) {
	if b == nil {
		return
	}
	b.Reset()
	builderPool.Put(b)
}
