// Package bitset is a fixed-size set of small non-negative integers, used to
// track visited token indices during graph searches.
package bitset

import (
	"fmt"
	"math/bits"
)

// BitSet holds n bits in ceil(n/64) words.
type BitSet []uint64

func New(n int) BitSet {
	return make(BitSet, (n+63)/64)
}

func (b BitSet) IsSet(i int) bool {
	return b[i/64]&(uint64(1)<<(uint(i)%64)) != 0
}

func (b BitSet) Set(i int) {
	b[i/64] |= uint64(1) << (uint(i) % 64)
}

func (b BitSet) Unset(i int) {
	b[i/64] &^= uint64(1) << (uint(i) % 64)
}

// Count is the number of set bits.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b BitSet) Clear() {
	clear(b)
}

// SetFrom overwrites b with o. Both must have the same size.
func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}
