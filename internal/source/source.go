// Package source reads raw packets for extraction.
package source

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/wire"
)

// Source yields raw packets. ReadPacket returns io.EOF once a finite source
// is exhausted and core.ErrSourceClosed after Close.
type Source interface {
	ReadPacket() (core.RawPacket, error)
	LinkType() layers.LinkType
	Close() error
}

// PacketType maps a capture link type to the packet type extraction starts
// from.
func PacketType(lt layers.LinkType) (wire.PacketType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return wire.PTEth, nil
	case layers.LinkTypeIPv4:
		return wire.PTIPv4, nil
	case layers.LinkTypeIPv6:
		return wire.PTIPv6, nil
	}
	return wire.PTUnknown, fmt.Errorf("%s: %w", lt, core.ErrUnsupportedLinkType)
}
