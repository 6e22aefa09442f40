package miniflow

import (
	"encoding/binary"
	"fmt"
	"strings"

	"firestige.xyz/flowkey/internal/core/flow"
)

// Miniflow is a finished sparse flow key. Values[i] is the word of the
// i-th set bit of Map, counting from the lowest.
type Miniflow struct {
	Map    Map
	Values []uint64
}

// Get returns word w of the canonical record and whether it is present.
func (mf *Miniflow) Get(w int) (uint64, bool) {
	if w < 0 || w >= flow.U64s || !mf.Map.IsSet(w) {
		return 0, false
	}
	idx := 0
	for unit := 0; unit < w/64; unit++ {
		idx += popcount(mf.Map[unit])
	}
	idx += popcount(mf.Map[w/64] & (1<<(uint(w)%64) - 1))
	return mf.Values[idx], true
}

// Expand writes the key out as a flat record; absent words are zero.
func (mf *Miniflow) Expand() flow.Flow {
	var f flow.Flow
	for i, w := range mf.Map.Indices() {
		if i >= len(mf.Values) {
			break
		}
		f[w] = mf.Values[i]
	}
	return f
}

// Equal reports whether two keys have the same map and values.
func (mf *Miniflow) Equal(other *Miniflow) bool {
	if mf.Map != other.Map || len(mf.Values) != len(other.Values) {
		return false
	}
	for i := range mf.Values {
		if mf.Values[i] != other.Values[i] {
			return false
		}
	}
	return true
}

// AppendBytes appends the map words then the values, little-endian. Equal
// keys append equal bytes.
func (mf *Miniflow) AppendBytes(b []byte) []byte {
	for _, w := range mf.Map {
		b = binary.LittleEndian.AppendUint64(b, w)
	}
	for _, v := range mf.Values {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return b
}

func (mf Miniflow) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "map=%s values=[", mf.Map)
	for i, v := range mf.Values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%#016x", v)
	}
	sb.WriteByte(']')
	return sb.String()
}
