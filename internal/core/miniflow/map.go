// Package miniflow implements the sparse flow-key encoding: a bitmap over
// the 64-bit words of the canonical flow record plus the values of the
// words it marks, in ascending offset order.
package miniflow

import (
	"fmt"
	"math/bits"

	"firestige.xyz/flowkey/internal/core/flow"
)

const mapUnits = (flow.U64s + 63) / 64

// Map marks which words of the flow record are present.
type Map [mapUnits]uint64

// Set marks word i present.
func (m *Map) Set(i int) {
	m[i/64] |= 1 << (uint(i) % 64)
}

// IsSet reports whether word i is present.
func (m Map) IsSet(i int) bool {
	return m[i/64]&(1<<(uint(i)%64)) != 0
}

// CountOnes returns the number of present words.
func (m Map) CountOnes() int {
	n := 0
	for _, u := range m {
		n += bits.OnesCount64(u)
	}
	return n
}

// IsEmpty reports whether no word is present.
func (m Map) IsEmpty() bool {
	return m.CountOnes() == 0
}

// Indices returns the present word indices in ascending order.
func (m Map) Indices() []int {
	out := make([]int, 0, m.CountOnes())
	for unit, u := range m {
		for u != 0 {
			out = append(out, unit*64+bits.TrailingZeros64(u))
			u &= u - 1
		}
	}
	return out
}

func (m Map) String() string {
	s := "0x"
	for i := len(m) - 1; i >= 0; i-- {
		s += fmt.Sprintf("%016x", m[i])
	}
	return s
}

func popcount(u uint64) int { return bits.OnesCount64(u) }
