package decoder

import (
	"firestige.xyz/flowkey/internal/core/flow"
	"firestige.xyz/flowkey/internal/core/miniflow"
	"firestige.xyz/flowkey/internal/core/wire"
)

// ParseMetadata pushes the packet metadata into b. Fields are pushed in the
// order of the flow record, so b must not hold anything past the tunnel
// record yet.
func ParseMetadata(md *flow.PktMetadata, pt wire.PacketType, b *miniflow.Builder) {
	projectTunnel(&md.Tunnel, b)

	// skb_priority and pkt_mark share a word: both or neither.
	if md.SkbPriority != 0 || md.PktMark != 0 {
		b.PushUint32(flow.SkbPriority.Offset, md.SkbPriority)
		b.PushUint32(flow.PktMark.Offset, md.PktMark)
	}

	b.PushUint32(flow.DpHash.Offset, md.DpHash)
	b.PushUint32(flow.InPort.Offset, md.InPort.ODPPort)

	if md.CtState != 0 {
		projectTracked(md, pt, b)
	} else {
		projectUntracked(md, pt, b)
	}
}

func projectTunnel(tnl *flow.FlowTnl, b *miniflow.Builder) {
	if !tnl.DstIsSet() {
		return
	}
	b.PushWords(flow.TunnelHeader.Offset, tnl.HeaderWords())

	md := &tnl.Metadata
	if !tnl.UDPIF() {
		if md.Present.Map() != 0 {
			b.PushWords(flow.TunnelMetadata.Offset, md.Words())
		}
		return
	}
	if n := int(md.Present.Len()); n != 0 {
		b.PushWords(flow.TunnelMetadataPresent.Offset, []uint64{md.Present.Word()})
		b.PushWords(flow.TunnelMetadataOpts.Offset, md.OptWords((n+7)/8))
	}
}

// projectTracked fills the recirc_id/ct_* words and packet_type for a packet
// that went through connection tracking.
func projectTracked(md *flow.PktMetadata, pt wire.PacketType, b *miniflow.Builder) {
	b.PushUint32(flow.RecircID.Offset, md.RecircID)
	b.PushUint8(flow.CtState.Offset, md.CtState)
	// Filled in by the L3/L4 stage once the IP protocol is known.
	b.PushUint8(flow.CtNwProto.Offset, 0)
	b.PushUint16(flow.CtZone.Offset, md.CtZone)
	b.PushUint32(flow.CtMark.Offset, md.CtMark)
	b.PushBE32(flow.PacketType.Offset, uint32(pt))

	if !md.CtLabel.IsZero() {
		b.PushWords(flow.CtLabel.Offset, md.CtLabel.Words())
	}
}

// projectUntracked leaves the ct_* bytes out of the key; only recirc_id,
// when set, and packet_type occupy the shared words.
func projectUntracked(md *flow.PktMetadata, pt wire.PacketType, b *miniflow.Builder) {
	if md.RecircID != 0 {
		b.PushUint32(flow.RecircID.Offset, md.RecircID)
		b.PadTo64(flow.RecircID.End())
	}
	b.PadFrom64(flow.PacketType.Offset)
	b.PushBE32(flow.PacketType.Offset, uint32(pt))
}
