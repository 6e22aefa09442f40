package flow

import (
	"encoding/binary"
	"net/netip"
)

// Tunnel flags.
const (
	TnlFDontFragment uint16 = 1 << 0
	TnlFCsum         uint16 = 1 << 1
	TnlFKey          uint16 = 1 << 2
	TnlFOAM          uint16 = 1 << 3
	// TnlFUDPIF marks tunnel options that are still raw packet data
	// (Geneve options as received) rather than sorted into known types.
	TnlFUDPIF uint16 = 1 << 4
)

// TunTableHandle refers to a tunnel option table owned elsewhere. It is
// carried through the key as an opaque value and never resolved here.
type TunTableHandle uint64

// TunPresent records which tunnel options are valid. It is one word that
// reads either as a bitmap of sorted options or, for raw UDP-interface
// options, as a byte length; the tunnel's TnlFUDPIF flag says which.
type TunPresent struct {
	word uint64
}

// PresentMap builds a TunPresent holding an option bitmap.
func PresentMap(m uint64) TunPresent { return TunPresent{word: m} }

// PresentLen builds a TunPresent holding a raw option length.
func PresentLen(n uint8) TunPresent {
	var b [8]byte
	b[0] = n
	return TunPresent{word: binary.NativeEndian.Uint64(b[:])}
}

// Map reads the word as an option bitmap.
func (p TunPresent) Map() uint64 { return p.word }

// Len reads the word as a raw option length.
func (p TunPresent) Len() uint8 {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], p.word)
	return b[0]
}

// Word returns the word as stored in the flow record.
func (p TunPresent) Word() uint64 { return p.word }

// TunMetadata is the tunnel option block of a tunnel record.
type TunMetadata struct {
	Present TunPresent
	Tab     TunTableHandle
	Opts    [tunOptsSize]byte
}

// Words returns the whole block as flow-record words.
func (m *TunMetadata) Words() []uint64 {
	out := make([]uint64, 0, tunMetadataSize/8)
	out = append(out, m.Present.Word(), uint64(m.Tab))
	return append(out, m.OptWords(tunOptsSize/8)...)
}

// OptWords returns the first n words of option data.
func (m *TunMetadata) OptWords(n int) []uint64 {
	if limit := tunOptsSize / 8; n > limit {
		n = limit
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.NativeEndian.Uint64(m.Opts[i*8:])
	}
	return out
}

// FlowTnl is the tunnel record of a received packet. Addresses left as the
// zero netip.Addr are unset.
type FlowTnl struct {
	IPDst      netip.Addr
	IPv6Dst    netip.Addr
	IPSrc      netip.Addr
	IPv6Src    netip.Addr
	TunID      uint64
	Flags      uint16
	IPTos      uint8
	IPTTL      uint8
	TpSrc      uint16
	TpDst      uint16
	GbpID      uint16
	GbpFlags   uint8
	ErspanVer  uint8
	ErspanIdx  uint32
	ErspanDir  uint8
	ErspanHwid uint8

	Metadata TunMetadata
}

// DstIsSet reports whether the tunnel has a destination of the slot's family,
// which is what makes the record part of the key.
func (t *FlowTnl) DstIsSet() bool {
	return (t.IPDst.Is4() && addrSet(t.IPDst)) || (t.IPv6Dst.Is6() && addrSet(t.IPv6Dst))
}

// UDPIF reports whether the option block holds raw UDP-interface options.
func (t *FlowTnl) UDPIF() bool {
	return t.Flags&TnlFUDPIF != 0
}

func addrSet(a netip.Addr) bool {
	return a.IsValid() && !a.IsUnspecified()
}

// HeaderWords encodes the tunnel header, everything before the option
// block, in flow-record layout.
func (t *FlowTnl) HeaderWords() []uint64 {
	var b [tnlHeaderSize]byte
	putAddr4(b[0:4], t.IPDst)
	putAddr16(b[4:20], t.IPv6Dst)
	putAddr4(b[20:24], t.IPSrc)
	putAddr16(b[24:40], t.IPv6Src)
	binary.BigEndian.PutUint64(b[40:48], t.TunID)
	binary.NativeEndian.PutUint16(b[48:50], t.Flags)
	b[50] = t.IPTos
	b[51] = t.IPTTL
	binary.BigEndian.PutUint16(b[52:54], t.TpSrc)
	binary.BigEndian.PutUint16(b[54:56], t.TpDst)
	binary.BigEndian.PutUint16(b[56:58], t.GbpID)
	b[58] = t.GbpFlags
	b[59] = t.ErspanVer
	binary.NativeEndian.PutUint32(b[60:64], t.ErspanIdx)
	b[64] = t.ErspanDir
	b[65] = t.ErspanHwid

	out := make([]uint64, tnlHeaderSize/8)
	for i := range out {
		out[i] = binary.NativeEndian.Uint64(b[i*8:])
	}
	return out
}

func putAddr4(dst []byte, a netip.Addr) {
	if a.Is4() {
		v := a.As4()
		copy(dst, v[:])
	}
}

func putAddr16(dst []byte, a netip.Addr) {
	if a.Is6() {
		v := a.As16()
		copy(dst, v[:])
	}
}
