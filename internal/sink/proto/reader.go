package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/wire"
)

// maxRecordSize bounds a record: the key plus scalar fields fit well below it.
const maxRecordSize = 4096

// Reader reads records written by Sink.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next record, or io.EOF at a clean end of stream.
func (r *Reader) Read() (core.ExtractedPacket, error) {
	n, err := binary.ReadUvarint(r.r)
	if err != nil {
		return core.ExtractedPacket{}, err
	}
	if n > maxRecordSize {
		return core.ExtractedPacket{}, fmt.Errorf("record of %d bytes exceeds %d", n, maxRecordSize)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return core.ExtractedPacket{}, err
	}
	return Unmarshal(r.buf)
}

// Unmarshal decodes one message. Unknown fields are skipped.
func Unmarshal(b []byte) (core.ExtractedPacket, error) {
	var p core.ExtractedPacket
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
			setVarint(&p, num, v)
		case typ == protowire.BytesType && (num == fieldMap || num == fieldValues):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
			words, err := fixed64s(v)
			if err != nil {
				return p, err
			}
			if num == fieldMap {
				copy(p.Key.Map[:], words)
			} else {
				p.Key.Values = words
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if got, want := len(p.Key.Values), p.Key.Map.CountOnes(); got != want {
		return p, fmt.Errorf("record has %d values for %d map bits", got, want)
	}
	return p, nil
}

func setVarint(p *core.ExtractedPacket, num protowire.Number, v uint64) {
	switch num {
	case fieldSeq:
		p.Seq = v
	case fieldTimestamp:
		p.Timestamp = time.Unix(0, int64(v))
	case fieldInPort:
		p.InPort = uint32(v)
	case fieldConsumed:
		p.Consumed = int(v)
	case fieldL2_5Offset:
		p.L2_5Offset = int(protowire.DecodeZigZag(v))
	case fieldDlType:
		p.DlType = wire.EtherType(v)
	case fieldVLANs:
		p.VLANs = int(v)
	case fieldMPLSLabels:
		p.MPLSLabels = int(v)
	case fieldMPLSScanned:
		p.MPLSScanned = int(v)
	}
}

func fixed64s(b []byte) ([]uint64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("packed fixed64 field of %d bytes", len(b))
	}
	out := make([]uint64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}
