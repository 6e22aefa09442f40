package wire

import (
	"encoding/binary"
	"fmt"
)

// Header sizes, in bytes.
const (
	EthAddrSize       = 6
	EthTypeSize       = 2
	EthHeaderSize     = 14
	MaxVLANHeaders    = 2
	VLANHeaderSize    = 4
	MaxMPLSLabels     = 3
	LLCHeaderSize     = 3
	SNAPHeaderSize    = 5
	LLCSNAPHeaderSize = LLCHeaderSize + SNAPHeaderSize
	MPLSHeaderSize    = 4
)

// LLC values announcing a SNAP header.
const (
	LLCDSAPSNAP uint8 = 0xaa
	LLCSSAPSNAP uint8 = 0xaa
	LLCCntlSNAP uint8 = 3
)

// EthAddr is a 48-bit MAC address in wire order.
type EthAddr [EthAddrSize]byte

func (a EthAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// VLANHeader is an 802.1Q/802.1ad tag. Both fields are in host order.
type VLANHeader struct {
	TPID uint16 // 0x8100 or 0x88a8
	TCI  uint16
}

// DecodeVLANHeader reads a 4-byte tag starting with the TPID.
func DecodeVLANHeader(b []byte) (VLANHeader, bool) {
	if len(b) < VLANHeaderSize {
		return VLANHeader{}, false
	}
	return VLANHeader{
		TPID: binary.BigEndian.Uint16(b[0:2]),
		TCI:  binary.BigEndian.Uint16(b[2:4]),
	}, true
}

// QTag returns the tag as the flow key stores it: the four wire bytes read
// as one native-endian 32-bit word.
func (h VLANHeader) QTag() uint32 {
	var b [VLANHeaderSize]byte
	binary.BigEndian.PutUint16(b[0:2], h.TPID)
	binary.BigEndian.PutUint16(b[2:4], h.TCI)
	return binary.NativeEndian.Uint32(b[:])
}

// VLANHeaderFromQTag is the inverse of QTag.
func VLANHeaderFromQTag(qtag uint32) VLANHeader {
	var b [VLANHeaderSize]byte
	binary.NativeEndian.PutUint32(b[:], qtag)
	h, _ := DecodeVLANHeader(b[:])
	return h
}

// VID returns the 12-bit VLAN identifier.
func (h VLANHeader) VID() uint16 { return h.TCI & 0x0fff }

// PCP returns the 3-bit priority code point.
func (h VLANHeader) PCP() uint8 { return uint8(h.TCI >> 13) }

// DEI returns the drop eligible indicator.
func (h VLANHeader) DEI() bool { return h.TCI&0x1000 != 0 }

// LLCHeader is the 802.2 logical link control header.
type LLCHeader struct {
	DSAP uint8
	SSAP uint8
	Cntl uint8
}

// SNAPHeader is the subnetwork access protocol header that follows LLC.
type SNAPHeader struct {
	Org  [3]byte
	Type uint16 // host order
}

// LLCSNAPHeader is the combined 8-byte LLC+SNAP header.
type LLCSNAPHeader struct {
	LLC  LLCHeader
	SNAP SNAPHeader
}

// DecodeLLCSNAP reads an LLC+SNAP header. It reports false when fewer than
// LLCSNAPHeaderSize bytes are available.
func DecodeLLCSNAP(b []byte) (LLCSNAPHeader, bool) {
	if len(b) < LLCSNAPHeaderSize {
		return LLCSNAPHeader{}, false
	}
	return LLCSNAPHeader{
		LLC: LLCHeader{DSAP: b[0], SSAP: b[1], Cntl: b[2]},
		SNAP: SNAPHeader{
			Org:  [3]byte{b[3], b[4], b[5]},
			Type: binary.BigEndian.Uint16(b[6:8]),
		},
	}, true
}

// IsSNAP reports whether the header is an LLC/SNAP encapsulation with a
// zero organization code, i.e. one that embeds an EtherType.
func (h LLCSNAPHeader) IsSNAP() bool {
	return h.LLC.DSAP == LLCDSAPSNAP &&
		h.LLC.SSAP == LLCSSAPSNAP &&
		h.LLC.Cntl == LLCCntlSNAP &&
		h.SNAP.Org == [3]byte{}
}

// MPLS label stack entry layout (RFC 3032):
//
//	|                Label                  | TC  |S|       TTL     |
const (
	MPLSLabelShift = 12
	MPLSTCShift    = 9
	MPLSBOSShift   = 8
	MPLSTTLMask    = 0xff
)

// MPLSHeader is one label stack entry as two 16-bit halves in host order.
type MPLSHeader struct {
	Hi uint16
	Lo uint16
}

// DecodeMPLSHeader reads one 4-byte label stack entry.
func DecodeMPLSHeader(b []byte) (MPLSHeader, bool) {
	if len(b) < MPLSHeaderSize {
		return MPLSHeader{}, false
	}
	return MPLSHeader{
		Hi: binary.BigEndian.Uint16(b[0:2]),
		Lo: binary.BigEndian.Uint16(b[2:4]),
	}, true
}

// Word returns the entry as the flow key stores it: the four wire bytes
// read as one native-endian 32-bit word.
func (h MPLSHeader) Word() uint32 {
	var b [MPLSHeaderSize]byte
	binary.BigEndian.PutUint16(b[0:2], h.Hi)
	binary.BigEndian.PutUint16(b[2:4], h.Lo)
	return binary.NativeEndian.Uint32(b[:])
}

// LSE returns the entry as a host-order 32-bit value.
func (h MPLSHeader) LSE() uint32 {
	return uint32(h.Hi)<<16 | uint32(h.Lo)
}

// BOS reports whether this is the bottom of the label stack.
func (h MPLSHeader) BOS() bool { return h.Lo&(1<<MPLSBOSShift) != 0 }

// Label returns the 20-bit label value.
func (h MPLSHeader) Label() uint32 { return h.LSE() >> MPLSLabelShift }

// TC returns the 3-bit traffic class.
func (h MPLSHeader) TC() uint8 { return uint8(h.Lo>>MPLSTCShift) & 0x7 }

// TTL returns the time to live.
func (h MPLSHeader) TTL() uint8 { return uint8(h.Lo & MPLSTTLMask) }
