package tape

import (
	"github.com/cespare/xxhash/v2"

	cometstrings "github.com/ajitpratap0/comet/pkg/strings"
)

// longKeyThreshold is the key length at which lookups switch to the xxhash
// digest map. Short keys are cheaper to hash with the runtime's map hash.
const longKeyThreshold = 64

// RefMap assigns dense 1-based references to distinct strings in insertion
// order. Ref 0 is reserved for missing cells. Keys at or beyond
// longKeyThreshold bytes are indexed by xxhash digest with collision
// verification against the stored key.
type RefMap struct {
	short map[string]uint32
	long  map[uint64][]uint32
	order []string
}

// NewRefMap creates an empty reference map.
func NewRefMap() *RefMap {
	return &RefMap{
		short: make(map[string]uint32),
	}
}

// Len returns the number of distinct keys.
func (rm *RefMap) Len() int {
	return len(rm.order)
}

// Ref returns the reference for key, assigning the next one if the key is
// new. The key bytes are only copied on first insertion, so callers may pass
// slices into a shared input buffer.
func (rm *RefMap) Ref(key []byte) uint32 {
	if len(key) >= longKeyThreshold {
		return rm.refLong(key)
	}

	s := cometstrings.BytesToString(key)
	if ref, ok := rm.short[s]; ok {
		return ref
	}

	owned := cometstrings.CloneBytes(key)
	ref := uint32(len(rm.order) + 1)
	rm.short[owned] = ref
	rm.order = append(rm.order, owned)
	return ref
}

func (rm *RefMap) refLong(key []byte) uint32 {
	if rm.long == nil {
		rm.long = make(map[uint64][]uint32)
	}

	h := xxhash.Sum64(key)
	for _, ref := range rm.long[h] {
		if rm.order[ref-1] == cometstrings.BytesToString(key) {
			return ref
		}
	}

	owned := cometstrings.CloneBytes(key)
	ref := uint32(len(rm.order) + 1)
	rm.long[h] = append(rm.long[h], ref)
	rm.order = append(rm.order, owned)
	return ref
}

// Lookup returns the reference for key without inserting.
func (rm *RefMap) Lookup(key []byte) (uint32, bool) {
	if len(key) >= longKeyThreshold {
		h := xxhash.Sum64(key)
		for _, ref := range rm.long[h] {
			if rm.order[ref-1] == cometstrings.BytesToString(key) {
				return ref, true
			}
		}
		return 0, false
	}
	ref, ok := rm.short[cometstrings.BytesToString(key)]
	return ref, ok
}

// Flatten returns the keys ordered by reference. Index i holds the key for
// ref i+1. The returned slice aliases the map's storage; callers must not
// mutate it.
func (rm *RefMap) Flatten() []string {
	return rm.order
}
