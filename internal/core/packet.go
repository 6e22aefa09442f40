// Package core defines core data structures shared by the projection stages.
package core

import (
	"time"

	"firestige.xyz/flowkey/internal/core/miniflow"
	"firestige.xyz/flowkey/internal/core/wire"
)

// RawPacket is a frame handed over by the packet-reception side, zero-copy reference to its buffer.
type RawPacket struct {
	Data       []byte    // Raw frame data, zero-copy slice
	Timestamp  time.Time // Capture timestamp
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length
	InPort     uint32    // Datapath input port
	Seq        uint64    // Position in the source, used to restore order after fan-out
}

// ExtractedPacket is the result of projecting one packet into its flow key.
type ExtractedPacket struct {
	Seq       uint64
	Timestamp time.Time
	InPort    uint32

	// Key is the sparse flow-key encoding.
	Key miniflow.Miniflow

	// L2 summary, as reported by the header walker.
	Consumed    int            // Bytes of header consumed
	L2_5Offset  int            // Start of the MPLS stack, -1 when absent
	DlType      wire.EtherType // Resolved EtherType (NotEth for unrecognized 802.3 frames)
	VLANs       int            // VLAN tags stored in the key
	MPLSLabels  int            // MPLS label entries stored in the key
	MPLSScanned int            // MPLS label entries consumed
}

// HasMPLS reports whether an MPLS label stack was found.
func (p *ExtractedPacket) HasMPLS() bool {
	return p.L2_5Offset >= 0
}
