// Package wire is the catalog of L2 wire formats the flow-key projection
// understands: EtherType codes, packet-type tags and header layouts.
package wire

import (
	"fmt"

	"github.com/google/gopacket/layers"
)

// EtherType is an Ethernet payload type code, in host order.
type EtherType uint16

const (
	// EtherTypeNotEth marks an 802.3 frame whose payload type could not be resolved.
	EtherTypeNotEth EtherType = 0x05ff
	// EtherTypeMin is the smallest value that is a type rather than a length.
	EtherTypeMin EtherType = 0x0600

	EtherTypeIPv4       EtherType = 0x0800
	EtherTypeARP        EtherType = 0x0806
	EtherTypeERSPAN2    EtherType = 0x22eb // version 2 type III
	EtherTypeRARP       EtherType = 0x8035
	EtherTypeVLAN8021Q  EtherType = 0x8100
	EtherTypeIPv6       EtherType = 0x86dd
	EtherTypeLACP       EtherType = 0x8809
	EtherTypeMPLS       EtherType = 0x8847
	EtherTypeMPLSMcast  EtherType = 0x8848
	EtherTypeVLAN8021AD EtherType = 0x88a8
	EtherTypeERSPAN1    EtherType = 0x88be // version 1 type II
	EtherTypeNSH        EtherType = 0x894f
)

var etherTypeNames = map[EtherType]string{
	EtherTypeNotEth:     "NotEth",
	EtherTypeMin:        "Min",
	EtherTypeIPv4:       "IPv4",
	EtherTypeARP:        "ARP",
	EtherTypeERSPAN2:    "ERSPANv2",
	EtherTypeRARP:       "RARP",
	EtherTypeVLAN8021Q:  "Dot1Q",
	EtherTypeIPv6:       "IPv6",
	EtherTypeLACP:       "LACP",
	EtherTypeMPLS:       "MPLSUnicast",
	EtherTypeMPLSMcast:  "MPLSMulticast",
	EtherTypeVLAN8021AD: "QinQ",
	EtherTypeERSPAN1:    "ERSPANv1",
	EtherTypeNSH:        "NSH",
}

// ParseEtherType maps a 16-bit code onto the catalog, sentinels included.
// Codes outside the catalog report false.
func ParseEtherType(v uint16) (EtherType, bool) {
	t := EtherType(v)
	if _, ok := etherTypeNames[t]; !ok {
		return 0, false
	}
	return t, true
}

// IsVLAN reports whether v is an 802.1Q or 802.1ad tag protocol identifier.
func IsVLAN(v uint16) bool {
	return v == uint16(EtherTypeVLAN8021Q) || v == uint16(EtherTypeVLAN8021AD)
}

// IsMPLS reports whether v announces an MPLS label stack.
func IsMPLS(v uint16) bool {
	return v == uint16(EtherTypeMPLS) || v == uint16(EtherTypeMPLSMcast)
}

// IsType reports whether t is a payload type rather than an 802.3 length.
func (t EtherType) IsType() bool {
	return t >= EtherTypeMin
}

// LayersType converts t for use with gopacket's layer decoders.
func (t EtherType) LayersType() layers.EthernetType {
	return layers.EthernetType(t)
}

func (t EtherType) String() string {
	if known, ok := ParseEtherType(uint16(t)); ok {
		return etherTypeNames[known]
	}
	if !t.IsType() {
		return fmt.Sprintf("Length(%d)", uint16(t))
	}
	return fmt.Sprintf("%s(0x%04x)", layers.EthernetType(t).String(), uint16(t))
}
