// Package decoder projects packet headers and packet metadata into the
// sparse flow-key encoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/flow"
	"firestige.xyz/flowkey/internal/core/miniflow"
	"firestige.xyz/flowkey/internal/core/wire"
)

// NoMPLS is the L2_5Offset of a packet without an MPLS label stack.
const NoMPLS = -1

// L2Result describes what the L2 walk consumed.
type L2Result struct {
	Consumed    int            // Bytes of header consumed
	L2_5Offset  int            // Offset of the MPLS stack, NoMPLS if absent
	DlType      wire.EtherType // Resolved EtherType
	VLANs       int            // VLAN tags stored
	MPLSLabels  int            // Label stack entries stored
	MPLSScanned int            // Label stack entries consumed
}

// L2Options tunes the walk.
type L2Options struct {
	// MaxMPLSScan bounds how many label stack entries are consumed looking
	// for the bottom of stack. Zero scans until the buffer ends.
	MaxMPLSScan int
}

// ParseL2 walks the Ethernet header, up to two VLAN tags, an optional
// LLC/SNAP header and an optional MPLS label stack, pushing what it finds
// into b. For packet types other than Ethernet, data starts at the payload
// and the EtherType comes from the packet type.
//
// The only error is core.ErrBadLength, for an Ethernet packet shorter than
// an Ethernet header; b is not touched in that case. Every other truncation
// ends the walk early without error.
func ParseL2(data []byte, b *miniflow.Builder, pt wire.PacketType) (L2Result, error) {
	return parseL2(data, b, pt, L2Options{})
}

func parseL2(data []byte, b *miniflow.Builder, pt wire.PacketType, opts L2Options) (L2Result, error) {
	res := L2Result{L2_5Offset: NoMPLS}
	offset := 0

	if pt.IsEthernet() {
		if len(data) < wire.EthHeaderSize {
			return res, fmt.Errorf("%d bytes: %w", len(data), core.ErrBadLength)
		}

		b.PushMACs(flow.DlDst.Offset, data[:2*wire.EthAddrSize])
		offset += 2 * wire.EthAddrSize

		var vlans [wire.MaxVLANHeaders]uint32
		used, n := parseVLAN(data[offset:], &vlans)
		offset += used
		res.VLANs = n

		used, dlType := parseEtherType(data[offset:])
		offset += used
		res.DlType = dlType
		b.PushBE16(flow.DlType.Offset, uint16(dlType))
		b.PadTo64(flow.DlType.End())

		if n > 0 {
			b.PushWords32(flow.Vlans.Offset, vlans[:n])
		}
	} else {
		res.DlType = wire.EtherType(pt.NsType())
		b.PadFrom64(flow.DlType.Offset)
		b.PushBE16(flow.DlType.Offset, uint16(res.DlType))
		b.PadTo64(flow.DlType.End())
	}

	if wire.IsMPLS(uint16(res.DlType)) {
		res.L2_5Offset = offset
		var labels [wire.MaxMPLSLabels]uint32
		used, scanned := parseMPLS(data[offset:], &labels, opts.MaxMPLSScan)
		offset += used
		res.MPLSScanned = scanned
		res.MPLSLabels = min(scanned, wire.MaxMPLSLabels)
		if res.MPLSLabels > 0 {
			b.PushWords32(flow.MplsLse.Offset, labels[:res.MPLSLabels])
		}
	}

	res.Consumed = offset
	return res, nil
}

// parseVLAN collects at most MaxVLANHeaders tags. The TPID is classified in
// network order but each tag is stored as its raw wire bytes read in native
// order, which is how the flow record holds it. It returns the bytes
// consumed and the number of tags stored.
func parseVLAN(data []byte, vlans *[wire.MaxVLANHeaders]uint32) (int, int) {
	offset, n := 0, 0
	for n < wire.MaxVLANHeaders {
		// A tag is only taken when the EtherType after it is there too.
		if len(data)-offset < wire.VLANHeaderSize+wire.EthTypeSize {
			break
		}
		if !wire.IsVLAN(binary.BigEndian.Uint16(data[offset:])) {
			break
		}
		h, _ := wire.DecodeVLANHeader(data[offset:])
		vlans[n] = h.QTag()
		offset += wire.VLANHeaderSize
		n++
	}
	return offset, n
}

// parseEtherType resolves the payload type, looking through an LLC/SNAP
// header when the type field holds an 802.3 length.
func parseEtherType(data []byte) (int, wire.EtherType) {
	if len(data) < wire.EthTypeSize {
		return 0, wire.EtherTypeNotEth
	}
	offset := wire.EthTypeSize
	ethType := wire.EtherType(binary.BigEndian.Uint16(data))
	if ethType.IsType() {
		return offset, ethType
	}

	llc, ok := wire.DecodeLLCSNAP(data[offset:])
	if !ok || !llc.IsSNAP() {
		return offset, wire.EtherTypeNotEth
	}
	offset += wire.LLCSNAPHeaderSize

	if snapType := wire.EtherType(llc.SNAP.Type); snapType.IsType() {
		return offset, snapType
	}
	return offset, wire.EtherTypeNotEth
}

// parseMPLS consumes label stack entries until the bottom of stack, the end
// of data, or maxScan entries when maxScan is positive. Only the first
// MaxMPLSLabels entries are stored. It returns the bytes consumed and the
// number of entries consumed.
func parseMPLS(data []byte, labels *[wire.MaxMPLSLabels]uint32, maxScan int) (int, int) {
	offset, count := 0, 0
	for maxScan <= 0 || count < maxScan {
		h, ok := wire.DecodeMPLSHeader(data[offset:])
		if !ok {
			break
		}
		offset += wire.MPLSHeaderSize
		if count < wire.MaxMPLSLabels {
			labels[count] = h.Word()
		}
		count++
		if h.BOS() {
			break
		}
	}
	return offset, count
}
