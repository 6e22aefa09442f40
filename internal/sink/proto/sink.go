// Package proto writes flow keys as length-delimited protobuf records.
//
// Each record is a varint byte length followed by a message with these
// fields:
//
//	1  seq           uint64
//	2  timestamp_ns  int64
//	3  in_port       uint32
//	4  map           repeated fixed64 (packed)
//	5  values        repeated fixed64 (packed)
//	6  consumed      uint32
//	7  l2_5_offset   sint32
//	8  dl_type       uint32
//	9  vlans         uint32
//	10 mpls_labels   uint32
//	11 mpls_scanned  uint32
package proto

import (
	"bufio"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"firestige.xyz/flowkey/internal/core"
)

const Name = "proto"

const (
	fieldSeq protowire.Number = iota + 1
	fieldTimestamp
	fieldInPort
	fieldMap
	fieldValues
	fieldConsumed
	fieldL2_5Offset
	fieldDlType
	fieldVLANs
	fieldMPLSLabels
	fieldMPLSScanned
)

// Sink appends records to a stream.
type Sink struct {
	w   *bufio.Writer
	buf []byte
	msg []byte
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: bufio.NewWriter(w)}
}

func (s *Sink) Write(p *core.ExtractedPacket) error {
	s.msg = Marshal(s.msg[:0], p)
	s.buf = protowire.AppendBytes(s.buf[:0], s.msg)
	_, err := s.w.Write(s.buf)
	return err
}

func (s *Sink) Flush() error { return s.w.Flush() }

func (s *Sink) Close() error { return s.w.Flush() }

// Marshal appends the message encoding of p to b, without the length prefix.
func Marshal(b []byte, p *core.ExtractedPacket) []byte {
	b = appendVarint(b, fieldSeq, p.Seq)
	if !p.Timestamp.IsZero() {
		b = appendVarint(b, fieldTimestamp, uint64(p.Timestamp.UnixNano()))
	}
	b = appendVarint(b, fieldInPort, uint64(p.InPort))
	b = appendFixed64s(b, fieldMap, p.Key.Map[:])
	b = appendFixed64s(b, fieldValues, p.Key.Values)
	b = appendVarint(b, fieldConsumed, uint64(p.Consumed))
	b = protowire.AppendTag(b, fieldL2_5Offset, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(p.L2_5Offset)))
	b = appendVarint(b, fieldDlType, uint64(p.DlType))
	b = appendVarint(b, fieldVLANs, uint64(p.VLANs))
	b = appendVarint(b, fieldMPLSLabels, uint64(p.MPLSLabels))
	b = appendVarint(b, fieldMPLSScanned, uint64(p.MPLSScanned))
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64s(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(vs)*8))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, v)
	}
	return b
}
