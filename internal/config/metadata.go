package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"firestige.xyz/flowkey/internal/core/flow"
)

// MetadataConfig is the packet metadata applied to every extracted packet,
// as if the datapath had attached it on receive.
type MetadataConfig struct {
	InPort      uint32       `mapstructure:"in_port"`
	SkbPriority uint32       `mapstructure:"skb_priority"`
	PktMark     uint32       `mapstructure:"pkt_mark"`
	RecircID    uint32       `mapstructure:"recirc_id"`
	DpHash      uint32       `mapstructure:"dp_hash"`
	CtState     uint8        `mapstructure:"ct_state"`
	CtZone      uint16       `mapstructure:"ct_zone"`
	CtMark      uint32       `mapstructure:"ct_mark"`
	CtLabel     CtLabel      `mapstructure:"ct_label"`
	Tunnel      TunnelConfig `mapstructure:"tunnel"`
}

// CtLabel is the 128-bit connection label as two halves.
type CtLabel struct {
	Hi uint64 `mapstructure:"hi"`
	Lo uint64 `mapstructure:"lo"`
}

// TunnelConfig describes the tunnel a packet was received on. A tunnel is
// only attached when Dst is set.
type TunnelConfig struct {
	Src   string `mapstructure:"src"`
	Dst   string `mapstructure:"dst"`
	TunID uint64 `mapstructure:"tun_id"`
	TTL   uint8  `mapstructure:"ttl"`
	Tos   uint8  `mapstructure:"tos"`
	TpSrc uint16 `mapstructure:"tp_src"`
	TpDst uint16 `mapstructure:"tp_dst"`
	Flags uint16 `mapstructure:"flags"`
}

// Validate checks the tunnel addresses.
func (m *MetadataConfig) Validate() error {
	src, dst, err := m.Tunnel.addrs()
	if err != nil {
		return err
	}
	if src.IsValid() && dst.IsValid() && src.Is4() != dst.Is4() {
		return invalid("metadata.tunnel: src %s and dst %s differ in family", src, dst)
	}
	if src.IsValid() && !dst.IsValid() {
		return invalid("metadata.tunnel.src set without dst")
	}
	return nil
}

func (t *TunnelConfig) addrs() (src, dst netip.Addr, err error) {
	if t.Src != "" {
		if src, err = netip.ParseAddr(t.Src); err != nil {
			return src, dst, invalid("metadata.tunnel.src: %v", err)
		}
	}
	if t.Dst != "" {
		if dst, err = netip.ParseAddr(t.Dst); err != nil {
			return src, dst, invalid("metadata.tunnel.dst: %v", err)
		}
	}
	return src.Unmap(), dst.Unmap(), nil
}

// PktMetadata builds the packet metadata record. Call Validate first; bad
// tunnel addresses are dropped here.
func (m *MetadataConfig) PktMetadata() *flow.PktMetadata {
	md := flow.NewPktMetadata(m.InPort)
	md.SkbPriority = m.SkbPriority
	md.PktMark = m.PktMark
	md.RecircID = m.RecircID
	md.DpHash = m.DpHash
	md.CtState = m.CtState
	md.CtZone = m.CtZone
	md.CtMark = m.CtMark
	md.CtLabel = flow.U128{Lo: m.CtLabel.Lo, Hi: m.CtLabel.Hi}

	src, dst, err := m.Tunnel.addrs()
	if err != nil || !dst.IsValid() {
		return md
	}
	tnl := &md.Tunnel
	if dst.Is4() {
		tnl.IPDst, tnl.IPSrc = dst, src
	} else {
		tnl.IPv6Dst, tnl.IPv6Src = dst, src
	}
	tnl.TunID = m.Tunnel.TunID
	tnl.IPTTL = m.Tunnel.TTL
	tnl.IPTos = m.Tunnel.Tos
	tnl.TpSrc = m.Tunnel.TpSrc
	tnl.TpDst = m.Tunnel.TpDst
	tnl.Flags = m.Tunnel.Flags
	return md
}

// LoadMetadataProfile reads a standalone metadata file, either bare or
// under a `metadata:` key. Numeric fields also accept strings such as
// "0x1f".
func LoadMetadataProfile(path string) (*MetadataConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata profile %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse metadata profile %s: %w", path, err)
	}
	if inner, ok := raw["metadata"].(map[string]interface{}); ok {
		raw = inner
	}
	return DecodeMetadata(raw)
}

// DecodeMetadata decodes a metadata profile from a generic map.
func DecodeMetadata(raw map[string]interface{}) (*MetadataConfig, error) {
	var m MetadataConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, invalid("metadata: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
