package miniflow

import (
	"encoding/binary"
	"fmt"
)

// Builder assembles a Miniflow one field at a time. Fields must be pushed at
// non-decreasing byte offsets of the canonical record; the builder tracks the
// cursor (the first byte not yet written) and the word currently being
// filled. Pushing behind the cursor is a programming error and panics.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	m      Map
	values []uint64
	cursor int
	last   int // index of the word values[len(values)-1] stands for, -1 if none
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	b := &Builder{values: make([]uint64, 0, 32)}
	b.Reset()
	return b
}

// Reset empties the builder, keeping its storage.
func (b *Builder) Reset() {
	b.m = Map{}
	b.values = b.values[:0]
	b.cursor = 0
	b.last = -1
}

// Cursor returns the byte offset of the next writable position.
func (b *Builder) Cursor() int { return b.cursor }

// Len returns the number of words pushed so far.
func (b *Builder) Len() int { return len(b.values) }

func (b *Builder) checkOrder(ofs int) {
	if ofs < b.cursor {
		panic(fmt.Sprintf("miniflow: push at offset %d behind cursor %d", ofs, b.cursor))
	}
}

// word makes w the current word, starting it if needed, and returns its value index.
func (b *Builder) word(w int) int {
	if w == b.last {
		return len(b.values) - 1
	}
	if w < b.last {
		panic(fmt.Sprintf("miniflow: word %d precedes current word %d", w, b.last))
	}
	b.m.Set(w)
	b.values = append(b.values, 0)
	b.last = w
	return len(b.values) - 1
}

// write stores p at byte offset ofs, starting words as it crosses them.
func (b *Builder) write(ofs int, p []byte) {
	b.checkOrder(ofs)
	var buf [8]byte
	for i := 0; i < len(p); {
		pos := ofs + i
		idx := b.word(pos / 8)
		binary.NativeEndian.PutUint64(buf[:], b.values[idx])
		n := copy(buf[pos%8:], p[i:])
		b.values[idx] = binary.NativeEndian.Uint64(buf[:])
		i += n
	}
	b.cursor = ofs + len(p)
}

// PushUint8 stores v at ofs.
func (b *Builder) PushUint8(ofs int, v uint8) {
	b.write(ofs, []byte{v})
}

// PushUint16 stores v at ofs in native byte order.
func (b *Builder) PushUint16(ofs int, v uint16) {
	var p [2]byte
	binary.NativeEndian.PutUint16(p[:], v)
	b.write(ofs, p[:])
}

// PushUint32 stores v at ofs in native byte order.
func (b *Builder) PushUint32(ofs int, v uint32) {
	var p [4]byte
	binary.NativeEndian.PutUint32(p[:], v)
	b.write(ofs, p[:])
}

// PushBE16 stores v at ofs in network byte order.
func (b *Builder) PushBE16(ofs int, v uint16) {
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], v)
	b.write(ofs, p[:])
}

// PushBE32 stores v at ofs in network byte order.
func (b *Builder) PushBE32(ofs int, v uint32) {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], v)
	b.write(ofs, p[:])
}

// PushMACs stores the destination and source addresses, 12 bytes as they
// appear on the wire, starting at ofs.
func (b *Builder) PushMACs(ofs int, macs []byte) {
	if len(macs) < 12 {
		panic(fmt.Sprintf("miniflow: PushMACs needs 12 bytes, got %d", len(macs)))
	}
	b.write(ofs, macs[:12])
}

// PushWords stores whole words starting at the word-aligned offset ofs.
func (b *Builder) PushWords(ofs int, words []uint64) {
	b.checkAligned(ofs)
	b.checkOrder(ofs)
	for i, v := range words {
		idx := b.word(ofs/8 + i)
		b.values[idx] = v
	}
	b.cursor = ofs + 8*len(words)
}

// PushWords32 stores 32-bit values back to back starting at the
// word-aligned offset ofs. An odd count leaves the upper half of the last
// word zero.
func (b *Builder) PushWords32(ofs int, words []uint32) {
	b.checkAligned(ofs)
	if len(words) == 0 {
		return
	}
	p := make([]byte, 4*len(words))
	for i, v := range words {
		binary.NativeEndian.PutUint32(p[4*i:], v)
	}
	b.write(ofs, p)
	b.cursor = roundUp8(b.cursor)
}

// PadTo64 moves the cursor from end, the end of the last field written, to
// the next word boundary. The skipped bytes stay zero.
func (b *Builder) PadTo64(end int) {
	b.checkOrder(end)
	b.cursor = roundUp8(end)
}

// PadFrom64 starts the word holding ofs and places the cursor at ofs, as if
// the bytes between the word boundary and ofs had been written as zero.
func (b *Builder) PadFrom64(ofs int) {
	b.checkOrder(ofs)
	b.word(ofs / 8)
	b.cursor = ofs
}

func (b *Builder) checkAligned(ofs int) {
	if ofs%8 != 0 {
		panic(fmt.Sprintf("miniflow: offset %d is not word aligned", ofs))
	}
}

// Miniflow returns a copy of what has been built so far.
func (b *Builder) Miniflow() Miniflow {
	values := make([]uint64, len(b.values))
	copy(values, b.values)
	return Miniflow{Map: b.m, Values: values}
}

func roundUp8(n int) int {
	return (n + 7) &^ 7
}
