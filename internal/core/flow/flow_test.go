package flow

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowkey/internal/core/wire"
)

func littleEndianHost() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	return b[0] == 1
}

func TestPktMetadataAlignment(t *testing.T) {
	var md PktMetadata
	assert.Equal(t, uintptr(57), unsafe.Offsetof(md.IcmpRelated))
	assert.Equal(t, uintptr(64), unsafe.Offsetof(md.CtOrigTuple))
	assert.Equal(t, uintptr(128), unsafe.Offsetof(md.Tunnel))
}

func TestSlotTableOrdered(t *testing.T) {
	for i := 1; i < len(Slots); i++ {
		prev, cur := Slots[i-1], Slots[i]
		assert.LessOrEqual(t, prev.End(), cur.Offset, "%s overlaps %s", prev.Name, cur.Name)
	}
	assert.Equal(t, Tunnel.End(), Metadata.Offset)
	assert.Equal(t, Regs.End(), SkbPriority.Offset)
	assert.Equal(t, 59, DlDst.Word())
	assert.Equal(t, DlDst.End(), DlSrc.Offset)
	assert.Equal(t, DlSrc.End(), DlType.Offset)
	assert.Equal(t, 84, U64s)
}

func TestSlotsInWord(t *testing.T) {
	names := func(w int) []string {
		var out []string
		for _, s := range SlotsInWord(w) {
			out = append(out, s.Name)
		}
		return out
	}
	assert.Equal(t, []string{"dl_dst", "dl_src"}, names(59))
	assert.Equal(t, []string{"dl_src", "dl_type"}, names(60))
	assert.Equal(t, []string{"recirc_id", "ct_state", "ct_nw_proto", "ct_zone"}, names(54))
	assert.Equal(t, []string{"tunnel.metadata.tab"}, names(10))
	assert.Equal(t, []string{"tunnel.header"}, names(0))
	assert.Equal(t, []string{"nw_src"}, names(64))
	assert.Empty(t, names(80))
}

func TestConnTrackSlotsShareWords(t *testing.T) {
	// recirc_id and the ct_state/ct_nw_proto/ct_zone triple share one word,
	// ct_mark and packet_type the next.
	assert.Equal(t, RecircID.Word(), CtZone.Word())
	assert.Equal(t, CtMark.Word(), PacketType.Word())
	assert.Equal(t, 0, PacketType.End()%8)
}

func TestCtOrigTupleVariants(t *testing.T) {
	md := NewPktMetadata(7)
	assert.Equal(t, uint32(7), md.InPort.ODPPort)

	v4 := CtTuple{
		Src:     netip.MustParseAddr("10.0.0.1"),
		Dst:     netip.MustParseAddr("10.0.0.2"),
		SrcPort: 1234,
		DstPort: 80,
		Proto:   6,
	}
	md.SetOrigTuple(v4)
	assert.False(t, md.CtOrigTupleIPv6)
	assert.Equal(t, v4, md.OrigTuple())
	assert.Equal(t, []byte{10, 0, 0, 1}, md.CtOrigTuple[0:4])

	v6 := CtTuple{
		Src:     netip.MustParseAddr("2001:db8::1"),
		Dst:     netip.MustParseAddr("2001:db8::2"),
		SrcPort: 53,
		DstPort: 5353,
		Proto:   17,
	}
	md.SetOrigTuple(v6)
	assert.True(t, md.CtOrigTupleIPv6)
	assert.Equal(t, v6, md.OrigTuple())
}

func TestTunPresentVariants(t *testing.T) {
	p := PresentMap(0x5)
	assert.Equal(t, uint64(0x5), p.Map())

	p = PresentLen(24)
	assert.Equal(t, uint8(24), p.Len())
	if littleEndianHost() {
		assert.Equal(t, uint64(24), p.Word())
	}
}

func TestFlowTnlHeaderWords(t *testing.T) {
	tnl := FlowTnl{}
	assert.False(t, tnl.DstIsSet())

	tnl.IPv6Dst = netip.IPv6Unspecified()
	assert.False(t, tnl.DstIsSet())

	tnl.IPDst = netip.MustParseAddr("192.168.1.1")
	tnl.TunID = 0x64
	tnl.TpDst = 4789
	require.True(t, tnl.DstIsSet())

	words := tnl.HeaderWords()
	require.Len(t, words, 9)

	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], words[0])
	assert.Equal(t, []byte{192, 168, 1, 1}, b[0:4])

	binary.NativeEndian.PutUint64(b[:], words[5])
	assert.Equal(t, uint64(0x64), binary.BigEndian.Uint64(b[:]))

	binary.NativeEndian.PutUint64(b[:], words[6])
	assert.Equal(t, uint16(4789), binary.BigEndian.Uint16(b[6:8]))
}

func TestFlowTnlDstMustMatchFamily(t *testing.T) {
	tnl := FlowTnl{IPv6Dst: netip.MustParseAddr("10.0.0.1")}
	assert.False(t, tnl.DstIsSet(), "IPv4 address in the IPv6 slot is not encodable")

	tnl = FlowTnl{IPDst: netip.MustParseAddr("2001:db8::1")}
	assert.False(t, tnl.DstIsSet(), "IPv6 address in the IPv4 slot is not encodable")

	tnl = FlowTnl{IPv6Dst: netip.MustParseAddr("2001:db8::1")}
	require.True(t, tnl.DstIsSet())
	words := tnl.HeaderWords()
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], words[0])
	assert.Equal(t, []byte{0x20, 0x01, 0x0d, 0xb8}, b[4:8])
}

func TestTunMetadataWords(t *testing.T) {
	var m TunMetadata
	m.Present = PresentMap(1)
	m.Tab = 9
	m.Opts[0] = 0xaa
	m.Opts[255] = 0xbb

	words := m.Words()
	require.Len(t, words, TunnelMetadata.Size/8)
	assert.Equal(t, uint64(1), words[0])
	assert.Equal(t, uint64(9), words[1])
	assert.NotZero(t, words[2])
	assert.NotZero(t, words[len(words)-1])

	assert.Len(t, m.OptWords(3), 3)
	assert.Len(t, m.OptWords(1000), 32)
}

func TestFlowAccessors(t *testing.T) {
	var f Flow
	put := func(ofs int, b []byte) {
		for i, v := range b {
			var w [8]byte
			pos := ofs + i
			binary.NativeEndian.PutUint64(w[:], f[pos/8])
			w[pos%8] = v
			f[pos/8] = binary.NativeEndian.Uint64(w[:])
		}
	}
	put(DlDst.Offset, []byte{0, 1, 2, 3, 4, 5})
	put(DlSrc.Offset, []byte{6, 7, 8, 9, 10, 11})
	put(DlType.Offset, []byte{0x86, 0xdd})
	put(Vlans.Offset, []byte{0x81, 0x00, 0x00, 0x0a})
	put(MplsLse.Offset, []byte{0x00, 0x01, 0x01, 0x40})
	put(PacketType.Offset, []byte{0x00, 0x01, 0x08, 0x00})

	assert.Equal(t, wire.EthAddr{0, 1, 2, 3, 4, 5}, f.DlDst())
	assert.Equal(t, wire.EthAddr{6, 7, 8, 9, 10, 11}, f.DlSrc())
	assert.Equal(t, wire.EtherTypeIPv6, f.DlType())
	assert.Equal(t, uint16(10), f.Vlans()[0].VID())
	assert.Equal(t, wire.VLANHeader{}, f.Vlans()[1])
	assert.True(t, f.MplsLse()[0].BOS())
	assert.Len(t, f.MplsLse(), 4)
	assert.Equal(t, wire.PTIPv4, f.PacketType())

	expand := func() Flow { return f }
	assert.Equal(t, wire.EtherTypeIPv6, expand().DlType())
	assert.Equal(t, uint32(0x10), expand().MplsLse()[0].Label())
}
