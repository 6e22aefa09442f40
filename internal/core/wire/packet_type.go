package wire

import (
	"encoding/binary"
	"fmt"
)

// Packet type namespaces.
const (
	NamespaceONF       uint16 = 0 // OpenFlow-defined types
	NamespaceEtherType uint16 = 1 // subtype is an EtherType
)

// PacketType identifies the framing of a packet: namespace in the high
// 16 bits, namespace-specific type in the low 16 bits. Held in host order;
// on the wire and inside the flow key it is big-endian.
type PacketType uint32

// NewPacketType combines a namespace and a subtype.
func NewPacketType(ns, nsType uint16) PacketType {
	return PacketType(uint32(ns)<<16 | uint32(nsType))
}

const (
	PTEth          = PacketType(uint32(NamespaceONF)<<16 | 0x0000)
	PTUseNextProto = PacketType(uint32(NamespaceONF)<<16 | 0xfffe) // pseudo type for decap
	PTIPv4         = PacketType(uint32(NamespaceEtherType)<<16 | uint32(EtherTypeIPv4))
	PTIPv6         = PacketType(uint32(NamespaceEtherType)<<16 | uint32(EtherTypeIPv6))
	PTMPLS         = PacketType(uint32(NamespaceEtherType)<<16 | uint32(EtherTypeMPLS))
	PTMPLSMcast    = PacketType(uint32(NamespaceEtherType)<<16 | uint32(EtherTypeMPLSMcast))
	PTNSH          = PacketType(uint32(NamespaceEtherType)<<16 | uint32(EtherTypeNSH))
	PTUnknown      = PacketType(0xffffffff)
)

// Namespace returns the high 16 bits.
func (pt PacketType) Namespace() uint16 {
	return uint16(pt >> 16)
}

// NsType returns the namespace-specific subtype.
func (pt PacketType) NsType() uint16 {
	return uint16(pt)
}

// IsEthernet reports whether the packet starts with an Ethernet header.
func (pt PacketType) IsEthernet() bool {
	return pt == PTEth
}

// BE returns the tag in wire byte order.
func (pt PacketType) BE() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(pt))
	return b
}

// PacketTypeFromBE reads a tag in wire byte order.
func PacketTypeFromBE(b []byte) (PacketType, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("packet type needs 4 bytes, got %d", len(b))
	}
	return PacketType(binary.BigEndian.Uint32(b)), nil
}

func (pt PacketType) String() string {
	switch pt {
	case PTEth:
		return "eth"
	case PTUseNextProto:
		return "use_next_proto"
	case PTUnknown:
		return "unknown"
	}
	if pt.Namespace() == NamespaceEtherType {
		return fmt.Sprintf("ethertype(%s)", EtherType(pt.NsType()))
	}
	return fmt.Sprintf("(%d,0x%04x)", pt.Namespace(), pt.NsType())
}

// ParsePacketType accepts the names printed by String for the well-known
// tags, or an explicit "ns,type" pair.
func ParsePacketType(s string) (PacketType, error) {
	switch s {
	case "eth", "":
		return PTEth, nil
	case "ipv4":
		return PTIPv4, nil
	case "ipv6":
		return PTIPv6, nil
	case "mpls":
		return PTMPLS, nil
	case "mpls_mc":
		return PTMPLSMcast, nil
	case "nsh":
		return PTNSH, nil
	case "use_next_proto":
		return PTUseNextProto, nil
	}
	var ns, nsType uint16
	if _, err := fmt.Sscanf(s, "%d,%v", &ns, &nsType); err != nil {
		return PTUnknown, fmt.Errorf("invalid packet type %q: %w", s, err)
	}
	return NewPacketType(ns, nsType), nil
}
