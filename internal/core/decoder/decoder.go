package decoder

import (
	"fmt"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/flow"
	"firestige.xyz/flowkey/internal/core/miniflow"
	"firestige.xyz/flowkey/internal/core/wire"
)

// Decoder projects raw packets into flow keys.
type Decoder interface {
	Decode(raw core.RawPacket, md *flow.PktMetadata) (core.ExtractedPacket, error)
}

// Config contains extraction settings.
type Config struct {
	// PacketType is the framing of packets handed to Decode.
	PacketType wire.PacketType
	// MaxMPLSScan bounds the label stack entries consumed per packet; 0 means unbounded.
	MaxMPLSScan int
}

// Extractor runs the metadata projection and the L2 walk against one
// builder it owns. It is not safe for concurrent use: give each worker its own.
type Extractor struct {
	cfg Config
	b   *miniflow.Builder
}

// NewExtractor creates an extractor.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg, b: miniflow.NewBuilder()}
}

// Decode extracts the key of raw using the configured packet type. A nil md
// stands for the metadata of a freshly received packet on raw.InPort.
func (e *Extractor) Decode(raw core.RawPacket, md *flow.PktMetadata) (core.ExtractedPacket, error) {
	if md == nil {
		md = flow.NewPktMetadata(raw.InPort)
	}
	out, err := e.Extract(raw.Data, e.cfg.PacketType, md)
	if err != nil {
		return out, err
	}
	out.Seq = raw.Seq
	out.Timestamp = raw.Timestamp
	out.InPort = md.InPort.ODPPort
	return out, nil
}

// Extract builds the key of one packet. Metadata is projected before the
// headers since its fields come first in the flow record.
func (e *Extractor) Extract(data []byte, pt wire.PacketType, md *flow.PktMetadata) (core.ExtractedPacket, error) {
	out := core.ExtractedPacket{L2_5Offset: NoMPLS}
	if pt.IsEthernet() && len(data) < wire.EthHeaderSize {
		return out, fmt.Errorf("%d bytes: %w", len(data), core.ErrBadLength)
	}

	e.b.Reset()
	ParseMetadata(md, pt, e.b)
	l2, err := parseL2(data, e.b, pt, L2Options{MaxMPLSScan: e.cfg.MaxMPLSScan})
	if err != nil {
		return out, err
	}

	out.Key = e.b.Miniflow()
	out.Consumed = l2.Consumed
	out.L2_5Offset = l2.L2_5Offset
	out.DlType = l2.DlType
	out.VLANs = l2.VLANs
	out.MPLSLabels = l2.MPLSLabels
	out.MPLSScanned = l2.MPLSScanned
	return out, nil
}
