// Package flow describes the canonical flat flow record: the byte offset of
// every field the projection writes, plus the per-packet metadata and tunnel
// records it reads.
package flow

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/flowkey/internal/core/wire"
)

// Slot is a field of the canonical flow record.
type Slot struct {
	Name   string
	Offset int // byte offset into the record
	Size   int // bytes
}

// End returns the offset just past the field.
func (s Slot) End() int { return s.Offset + s.Size }

// Word returns the index of the 64-bit word holding the first byte.
func (s Slot) Word() int { return s.Offset / 8 }

// Tunnel header fields occupy the first 72 bytes; the metadata block follows.
const (
	tnlHeaderSize   = 72
	tunOptsSize     = 256
	tunMetadataSize = 8 + 8 + tunOptsSize
	tnlSize         = tnlHeaderSize + tunMetadataSize
	numRegs         = 16
)

// The field slot table. Both connection-tracking projection branches and the
// L2 walker address the record exclusively through these entries.
var (
	Tunnel                = Slot{"tunnel", 0, tnlSize}
	TunnelHeader          = Slot{"tunnel.header", 0, tnlHeaderSize}
	TunnelMetadata        = Slot{"tunnel.metadata", tnlHeaderSize, tunMetadataSize}
	TunnelMetadataPresent = Slot{"tunnel.metadata.present", tnlHeaderSize, 8}
	TunnelMetadataTab     = Slot{"tunnel.metadata.tab", tnlHeaderSize + 8, 8}
	TunnelMetadataOpts    = Slot{"tunnel.metadata.opts", tnlHeaderSize + 16, tunOptsSize}
	Metadata              = Slot{"metadata", tnlSize, 8}
	Regs                  = Slot{"regs", tnlSize + 8, 4 * numRegs}
	SkbPriority           = Slot{"skb_priority", 416, 4}
	PktMark               = Slot{"pkt_mark", 420, 4}
	DpHash                = Slot{"dp_hash", 424, 4}
	InPort                = Slot{"in_port", 428, 4}
	RecircID              = Slot{"recirc_id", 432, 4}
	CtState               = Slot{"ct_state", 436, 1}
	CtNwProto             = Slot{"ct_nw_proto", 437, 1}
	CtZone                = Slot{"ct_zone", 438, 2}
	CtMark                = Slot{"ct_mark", 440, 4}
	PacketType            = Slot{"packet_type", 444, 4}
	CtLabel               = Slot{"ct_label", 448, 16}
	ConjID                = Slot{"conj_id", 464, 4}
	ActsetOutput          = Slot{"actset_output", 468, 4}
	DlDst                 = Slot{"dl_dst", 472, wire.EthAddrSize}
	DlSrc                 = Slot{"dl_src", 478, wire.EthAddrSize}
	DlType                = Slot{"dl_type", 484, wire.EthTypeSize}
	Vlans                 = Slot{"vlans", 488, 4 * wire.MaxVLANHeaders}
	MplsLse               = Slot{"mpls_lse", 496, 4 * 4}
	NwSrc                 = Slot{"nw_src", 512, 4} // first L3 field
)

// Size of the canonical record in bytes and 64-bit words.
const (
	Size = 672
	U64s = Size / 8
)

// Slots lists the table in offset order.
var Slots = []Slot{
	TunnelHeader, TunnelMetadataPresent, TunnelMetadataTab, TunnelMetadataOpts, Metadata, Regs,
	SkbPriority, PktMark, DpHash, InPort, RecircID, CtState, CtNwProto, CtZone,
	CtMark, PacketType, CtLabel, ConjID, ActsetOutput, DlDst, DlSrc, DlType,
	Vlans, MplsLse, NwSrc,
}

// Flow is the canonical record expanded to its flat form. Each word holds
// eight bytes of the record in native byte order.
type Flow [U64s]uint64

// BytesAt copies n bytes starting at byte offset ofs.
func (f Flow) BytesAt(ofs, n int) []byte {
	out := make([]byte, n)
	var w [8]byte
	for i := 0; i < n; i++ {
		pos := ofs + i
		binary.NativeEndian.PutUint64(w[:], f[pos/8])
		out[i] = w[pos%8]
	}
	return out
}

// Uint32At reads a native-endian 32-bit field.
func (f Flow) Uint32At(s Slot) uint32 {
	return binary.NativeEndian.Uint32(f.BytesAt(s.Offset, 4))
}

// DlDst returns the destination MAC address.
func (f Flow) DlDst() wire.EthAddr {
	var a wire.EthAddr
	copy(a[:], f.BytesAt(DlDst.Offset, DlDst.Size))
	return a
}

// DlSrc returns the source MAC address.
func (f Flow) DlSrc() wire.EthAddr {
	var a wire.EthAddr
	copy(a[:], f.BytesAt(DlSrc.Offset, DlSrc.Size))
	return a
}

// DlType returns the EtherType, stored big-endian.
func (f Flow) DlType() wire.EtherType {
	return wire.EtherType(binary.BigEndian.Uint16(f.BytesAt(DlType.Offset, DlType.Size)))
}

// Vlans returns both VLAN tag slots; absent tags read as zero.
func (f Flow) Vlans() [wire.MaxVLANHeaders]wire.VLANHeader {
	var out [wire.MaxVLANHeaders]wire.VLANHeader
	b := f.BytesAt(Vlans.Offset, Vlans.Size)
	for i := range out {
		out[i], _ = wire.DecodeVLANHeader(b[i*wire.VLANHeaderSize:])
	}
	return out
}

// MplsLse returns the label stack entries; absent entries read as zero.
func (f Flow) MplsLse() []wire.MPLSHeader {
	b := f.BytesAt(MplsLse.Offset, MplsLse.Size)
	out := make([]wire.MPLSHeader, 0, MplsLse.Size/wire.MPLSHeaderSize)
	for i := 0; i+wire.MPLSHeaderSize <= len(b); i += wire.MPLSHeaderSize {
		h, _ := wire.DecodeMPLSHeader(b[i:])
		out = append(out, h)
	}
	return out
}

// PacketType returns the packet type tag, stored big-endian.
func (f Flow) PacketType() wire.PacketType {
	pt, _ := wire.PacketTypeFromBE(f.BytesAt(PacketType.Offset, PacketType.Size))
	return pt
}

// SlotsInWord returns the slots overlapping word w, in offset order.
func SlotsInWord(w int) []Slot {
	lo, hi := w*8, w*8+8
	var out []Slot
	for _, s := range Slots {
		if s.Offset < hi && s.End() > lo {
			out = append(out, s)
		}
	}
	return out
}

func (s Slot) String() string {
	return fmt.Sprintf("%-24s ofs=%-4d size=%-4d word=%d", s.Name, s.Offset, s.Size, s.Word())
}
