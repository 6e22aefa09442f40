package decoder

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowkey/internal/core/flow"
	"firestige.xyz/flowkey/internal/core/miniflow"
	"firestige.xyz/flowkey/internal/core/wire"
)

func trackedMetadata() *flow.PktMetadata {
	md := flow.NewPktMetadata(0x44)
	md.SkbPriority = 0x11
	md.PktMark = 0x22
	md.DpHash = 0x33
	md.RecircID = 0x11
	md.CtState = 0x05
	md.CtZone = 0x66
	md.CtMark = 0x77
	md.CtLabel = flow.U128{Lo: 0x1111, Hi: 0x2222}
	return md
}

func TestParseMetadataTracked(t *testing.T) {
	skipOnBigEndian(t)

	b := miniflow.NewBuilder()
	ParseMetadata(trackedMetadata(), wire.PTIPv4, b)

	mf := b.Miniflow()
	assert.Equal(t, []int{52, 53, 54, 55, 56, 57}, mf.Map.Indices())
	assert.Equal(t, []uint64{
		0x0000002200000011, // skb_priority, pkt_mark
		0x0000004400000033, // dp_hash, in_port
		0x0066000500000011, // recirc_id, ct_state, ct_nw_proto, ct_zone
		0x0008010000000077, // ct_mark, packet_type
		0x1111,
		0x2222,
	}, mf.Values)

	f := mf.Expand()
	assert.Equal(t, wire.PTIPv4, f.PacketType())
}

func TestParseMetadataUntracked(t *testing.T) {
	skipOnBigEndian(t)

	md := trackedMetadata()
	md.CtState = 0

	b := miniflow.NewBuilder()
	ParseMetadata(md, wire.PTIPv4, b)

	mf := b.Miniflow()
	assert.Equal(t, []int{52, 53, 54, 55}, mf.Map.Indices())
	assert.Equal(t, []uint64{
		0x0000002200000011,
		0x0000004400000033,
		0x0000000000000011, // recirc_id only
		0x0008010000000000, // packet_type only
	}, mf.Values)
}

func TestParseMetadataMinimal(t *testing.T) {
	skipOnBigEndian(t)

	b := miniflow.NewBuilder()
	ParseMetadata(flow.NewPktMetadata(7), wire.PTEth, b)

	mf := b.Miniflow()
	// dp_hash and in_port are always keyed, packet_type always has a word.
	assert.Equal(t, []int{53, 55}, mf.Map.Indices())
	assert.Equal(t, []uint64{0x0000000700000000, 0}, mf.Values)
}

func TestParseMetadataPriorityWithoutMark(t *testing.T) {
	md := flow.NewPktMetadata(1)
	md.PktMark = 9

	b := miniflow.NewBuilder()
	ParseMetadata(md, wire.PTEth, b)

	mf := b.Miniflow()
	assert.True(t, mf.Map.IsSet(flow.SkbPriority.Word()))
	f := mf.Expand()
	assert.Equal(t, uint32(0), f.Uint32At(flow.SkbPriority))
	assert.Equal(t, uint32(9), f.Uint32At(flow.PktMark))
}

func TestParseMetadataTunnel(t *testing.T) {
	skipOnBigEndian(t)

	base := func() *flow.PktMetadata {
		md := flow.NewPktMetadata(1)
		md.Tunnel.IPDst = netip.MustParseAddr("10.0.0.1")
		md.Tunnel.TunID = 0x64
		for i := range md.Tunnel.Metadata.Opts {
			md.Tunnel.Metadata.Opts[i] = byte(i)
		}
		return md
	}

	t.Run("header only", func(t *testing.T) {
		b := miniflow.NewBuilder()
		ParseMetadata(base(), wire.PTEth, b)
		mf := b.Miniflow()
		for w := 0; w < 9; w++ {
			assert.True(t, mf.Map.IsSet(w), "word %d", w)
		}
		assert.False(t, mf.Map.IsSet(9))
		v, ok := mf.Get(0)
		require.True(t, ok)
		assert.Equal(t, uint64(0x0100000a), v)
	})

	t.Run("option bitmap", func(t *testing.T) {
		md := base()
		md.Tunnel.Metadata.Present = flow.PresentMap(0x3)
		md.Tunnel.Metadata.Tab = 0xabc

		b := miniflow.NewBuilder()
		ParseMetadata(md, wire.PTEth, b)
		mf := b.Miniflow()
		for w := 9; w < 9+34; w++ {
			assert.True(t, mf.Map.IsSet(w), "word %d", w)
		}
		tab, ok := mf.Get(10)
		require.True(t, ok)
		assert.Equal(t, uint64(0xabc), tab)
	})

	t.Run("udpif options", func(t *testing.T) {
		md := base()
		md.Tunnel.Flags = flow.TnlFUDPIF
		md.Tunnel.Metadata.Present = flow.PresentLen(12)
		md.Tunnel.Metadata.Tab = 0xabc

		b := miniflow.NewBuilder()
		ParseMetadata(md, wire.PTEth, b)
		mf := b.Miniflow()
		assert.True(t, mf.Map.IsSet(9))
		assert.False(t, mf.Map.IsSet(10), "table handle is not keyed for raw options")
		assert.True(t, mf.Map.IsSet(11))
		assert.True(t, mf.Map.IsSet(12))
		assert.False(t, mf.Map.IsSet(13))

		opt, _ := mf.Get(11)
		assert.Equal(t, uint64(0x0706050403020100), opt)
	})

	t.Run("empty options", func(t *testing.T) {
		md := base()
		md.Tunnel.Flags = flow.TnlFUDPIF
		b := miniflow.NewBuilder()
		ParseMetadata(md, wire.PTEth, b)
		assert.False(t, b.Miniflow().Map.IsSet(9))
	})

	t.Run("unspecified destination", func(t *testing.T) {
		md := base()
		md.Tunnel.IPDst = netip.IPv4Unspecified()
		b := miniflow.NewBuilder()
		ParseMetadata(md, wire.PTEth, b)
		assert.False(t, b.Miniflow().Map.IsSet(0))
	})
}

func TestParseMetadataIdempotent(t *testing.T) {
	md := trackedMetadata()
	md.Tunnel.IPv6Dst = netip.MustParseAddr("2001:db8::1")

	b1, b2 := miniflow.NewBuilder(), miniflow.NewBuilder()
	ParseMetadata(md, wire.PTIPv6, b1)
	ParseMetadata(md, wire.PTIPv6, b2)
	m1, m2 := b1.Miniflow(), b2.Miniflow()
	assert.True(t, m1.Equal(&m2))
}
