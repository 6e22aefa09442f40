package flow

import (
	"encoding/binary"
	"net/netip"
	"unsafe"
)

// U128 is a 128-bit value stored as two 64-bit halves.
type U128 struct {
	Lo uint64
	Hi uint64
}

// IsZero reports whether both halves are zero.
func (u U128) IsZero() bool { return u.Lo == 0 && u.Hi == 0 }

// Words returns the value as flow-record words, low half first.
func (u U128) Words() []uint64 { return []uint64{u.Lo, u.Hi} }

// FlowInPort is the datapath port a packet arrived on.
type FlowInPort struct {
	ODPPort uint32
}

// ConnHandle identifies an in-flight connection-tracking entry in a table
// owned by the caller. Zero means no entry. The projection never resolves it.
type ConnHandle uint64

// CtTuple is a connection-tracking original-direction tuple.
type CtTuple struct {
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

const ctOrigTupleSize = 40

// CtOrigTuple holds either an IPv4 or an IPv6 tuple in wire layout. Which
// one is selected by PktMetadata.CtOrigTupleIPv6.
type CtOrigTuple [ctOrigTupleSize]byte

// IPv4 decodes the buffer as an IPv4 tuple.
func (t *CtOrigTuple) IPv4() CtTuple {
	return CtTuple{
		Src:     netip.AddrFrom4([4]byte(t[0:4])),
		Dst:     netip.AddrFrom4([4]byte(t[4:8])),
		SrcPort: binary.BigEndian.Uint16(t[8:10]),
		DstPort: binary.BigEndian.Uint16(t[10:12]),
		Proto:   t[12],
	}
}

// SetIPv4 stores an IPv4 tuple. Addresses that are not IPv4 are stored as zero.
func (t *CtOrigTuple) SetIPv4(v CtTuple) {
	*t = CtOrigTuple{}
	putAddr4(t[0:4], v.Src)
	putAddr4(t[4:8], v.Dst)
	binary.BigEndian.PutUint16(t[8:10], v.SrcPort)
	binary.BigEndian.PutUint16(t[10:12], v.DstPort)
	t[12] = v.Proto
}

// IPv6 decodes the buffer as an IPv6 tuple.
func (t *CtOrigTuple) IPv6() CtTuple {
	return CtTuple{
		Src:     netip.AddrFrom16([16]byte(t[0:16])),
		Dst:     netip.AddrFrom16([16]byte(t[16:32])),
		SrcPort: binary.BigEndian.Uint16(t[32:34]),
		DstPort: binary.BigEndian.Uint16(t[34:36]),
		Proto:   t[36],
	}
}

// SetIPv6 stores an IPv6 tuple.
func (t *CtOrigTuple) SetIPv6(v CtTuple) {
	*t = CtOrigTuple{}
	putAddr16(t[0:16], v.Src)
	putAddr16(t[16:32], v.Dst)
	binary.BigEndian.PutUint16(t[32:34], v.SrcPort)
	binary.BigEndian.PutUint16(t[34:36], v.DstPort)
	t[36] = v.Proto
}

// PktMetadata is the out-of-band state attached to a packet before its
// headers are projected. The projection only reads it.
//
// The field order and padding keep IcmpRelated at byte 57, CtOrigTuple at
// byte 64 and Tunnel at byte 128, the first two cache lines holding
// everything but the tunnel.
type PktMetadata struct {
	RecircID        uint32
	DpHash          uint32
	SkbPriority     uint32
	PktMark         uint32
	CtState         uint8
	CtOrigTupleIPv6 bool
	CtZone          uint16
	CtMark          uint32
	CtLabel         U128
	InPort          FlowInPort
	_               [4]byte
	Conn            ConnHandle
	Reply           bool
	IcmpRelated     bool
	_               [6]byte

	CtOrigTuple CtOrigTuple
	_           [24]byte

	Tunnel FlowTnl
}

const (
	icmpRelatedOffset = 57
	ctOrigTupleOffset = 64
	tunnelOffset      = 128
)

// Layout checks: each index is zero only when the offset matches.
var (
	_ = [1]struct{}{}[unsafe.Offsetof(PktMetadata{}.IcmpRelated)-icmpRelatedOffset]
	_ = [1]struct{}{}[unsafe.Offsetof(PktMetadata{}.CtOrigTuple)-ctOrigTupleOffset]
	_ = [1]struct{}{}[unsafe.Offsetof(PktMetadata{}.Tunnel)-tunnelOffset]
)

// NewPktMetadata returns the metadata of a freshly received packet.
func NewPktMetadata(inPort uint32) *PktMetadata {
	return &PktMetadata{InPort: FlowInPort{ODPPort: inPort}}
}

// OrigTuple decodes the original-direction tuple using the discriminant.
func (md *PktMetadata) OrigTuple() CtTuple {
	if md.CtOrigTupleIPv6 {
		return md.CtOrigTuple.IPv6()
	}
	return md.CtOrigTuple.IPv4()
}

// SetOrigTuple stores t and sets the discriminant from its source address.
func (md *PktMetadata) SetOrigTuple(t CtTuple) {
	md.CtOrigTupleIPv6 = t.Src.Is6() && !t.Src.Is4In6()
	if md.CtOrigTupleIPv6 {
		md.CtOrigTuple.SetIPv6(t)
		return
	}
	md.CtOrigTuple.SetIPv4(t)
}
