// Package tape implements the columnar storage model: type codes, packed
// 128-bit cells, position sidecars, and string pool reference maps.
//
// Each column is stored as a tape of two 64-bit slots per row. The poslen
// slot locates the raw field bytes in the input buffer and carries per-cell
// flags; the value slot holds the typed representation as raw bits. All
// packing is bitwise, slots are never reinterpreted through structs.
package tape

import (
	"sync/atomic"
)

// TypeCode is a bitset describing a column's type state. Exactly one base bit
// is set at a time; the Missing and User flags are orthogonal and survive
// promotion.
type TypeCode uint16

const (
	// Empty marks a column that has produced no values yet
	Empty TypeCode = 0
	// MissingType marks a column that has only produced missing values
	MissingType TypeCode = 1 << 0
	// Int is a 64-bit signed integer column
	Int TypeCode = 1 << 1
	// Float is a 64-bit float column
	Float TypeCode = 1 << 2
	// Date is a calendar date column stored as days since the Unix epoch
	Date TypeCode = 1 << 3
	// DateTime is a timestamp column stored as microseconds since the Unix epoch
	DateTime TypeCode = 1 << 4
	// Time is a time-of-day column stored as nanoseconds since midnight
	Time TypeCode = 1 << 5
	// Bool is a boolean column stored as 0 or 1
	Bool TypeCode = 1 << 6
	// Pool is a pooled string column whose value slots hold 1-based refs
	Pool TypeCode = 1 << 7
	// String is a raw string column addressed through the poslen slot
	String TypeCode = 1 << 8

	// FlagMissing records that at least one cell in the column is missing
	FlagMissing TypeCode = 1 << 14
	// FlagUser records that the type was pinned by the caller
	FlagUser TypeCode = 1 << 15

	baseMask TypeCode = 0x01FF
	flagMask TypeCode = FlagMissing | FlagUser
)

// Base returns the type with orthogonal flags stripped.
func (t TypeCode) Base() TypeCode {
	return t & baseMask
}

// HasMissing reports whether any cell of the column is missing.
func (t TypeCode) HasMissing() bool {
	return t&FlagMissing != 0
}

// IsUser reports whether the type was pinned by the caller.
func (t TypeCode) IsUser() bool {
	return t&FlagUser != 0
}

// WithMissing returns t with the missing flag set.
func (t TypeCode) WithMissing() TypeCode {
	return t | FlagMissing
}

// Kind returns the human-readable name of the base type.
func (t TypeCode) Kind() string {
	switch t.Base() {
	case Empty:
		return "empty"
	case MissingType:
		return "missing"
	case Int:
		return "int"
	case Float:
		return "float"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	case Time:
		return "time"
	case Bool:
		return "bool"
	case Pool:
		return "pool"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// Join returns the least type both a and b promote to. String is the
// universal sink: any two distinct concrete types that are not Int and Float
// join to String. Flags are unioned, and joining with MissingType marks the
// result missing.
func Join(a, b TypeCode) TypeCode {
	flags := (a | b) & flagMask
	ba, bb := a.Base(), b.Base()

	switch {
	case ba == bb:
		return ba | flags
	case ba == Empty:
		return bb | flags
	case bb == Empty:
		return ba | flags
	case ba == MissingType:
		return bb | flags | FlagMissing
	case bb == MissingType:
		return ba | flags | FlagMissing
	case (ba == Int && bb == Float) || (ba == Float && bb == Int):
		return Float | flags
	default:
		return String | flags
	}
}

// PromotesTo reports whether a column of type t may become type to without
// losing information. Promotion never runs downhill.
func (t TypeCode) PromotesTo(to TypeCode) bool {
	return Join(t, to).Base() == to.Base()
}

// AtomicTypes is a type vector shared across parse workers. Each slot moves
// only upward through the promotion lattice, so concurrent writers converge
// on the join of everything they observed.
type AtomicTypes struct {
	slots []atomic.Uint32
}

// NewAtomicTypes creates a vector of cols type slots, all Empty.
func NewAtomicTypes(cols int) *AtomicTypes {
	return &AtomicTypes{slots: make([]atomic.Uint32, cols)}
}

// Len returns the number of columns.
func (at *AtomicTypes) Len() int {
	return len(at.slots)
}

// Load returns the current type of column col.
func (at *AtomicTypes) Load(col int) TypeCode {
	return TypeCode(at.slots[col].Load())
}

// Store sets column col unconditionally. Only safe before workers start.
func (at *AtomicTypes) Store(col int, t TypeCode) {
	at.slots[col].Store(uint32(t))
}

// Promote lifts column col to the join of its current type and to, returning
// the resulting type. Lost CAS races retry, so the final state is the same
// regardless of arrival order.
func (at *AtomicTypes) Promote(col int, to TypeCode) TypeCode {
	for {
		cur := TypeCode(at.slots[col].Load())
		next := Join(cur, to)
		if next == cur {
			return cur
		}
		if at.slots[col].CompareAndSwap(uint32(cur), uint32(next)) {
			return next
		}
	}
}
