// Package file reads packets from pcap and pcapng capture files.
package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/flowkey/internal/core"
)

// pcapng files start with a Section Header Block.
const ngBlockTypeSHB = 0x0a0d0d0a

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Config configures a file source.
type Config struct {
	Path string
	// InPort is the datapath port of packets from the first pcapng
	// interface; later interfaces follow on consecutive ports.
	InPort uint32
}

// Source reads a capture file sequentially.
type Source struct {
	path   string
	inPort uint32

	mu     sync.Mutex
	f      io.Closer
	reader packetReader
	seq    uint64
	closed bool
}

// Open opens a pcap or pcapng file, telling them apart by the magic number.
func Open(cfg Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required: %w", core.ErrConfigInvalid)
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", cfg.Path, err)
	}

	s, err := newSource(f, cfg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Path, err)
	}
	s.f = f
	return s, nil
}

// NewReader reads a capture from r. Closing the source does not close r.
func NewReader(r io.Reader, cfg Config) (*Source, error) {
	return newSource(r, cfg)
}

func newSource(r io.Reader, cfg Config) (*Source, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var reader packetReader
	// The block type reads the same in either byte order.
	if binary.LittleEndian.Uint32(magic) == ngBlockTypeSHB {
		reader, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		reader, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse capture header: %w", err)
	}

	return &Source{
		path:   cfg.Path,
		inPort: cfg.InPort,
		reader: reader,
	}, nil
}

// ReadPacket returns the next packet, or io.EOF at the end of the file.
func (s *Source) ReadPacket() (core.RawPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.RawPacket{}, core.ErrSourceClosed
	}

	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return core.RawPacket{}, io.EOF
		}
		return core.RawPacket{}, fmt.Errorf("failed to read packet: %w", err)
	}

	s.seq++
	return core.RawPacket{
		Data:       data,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
		InPort:     s.inPort + uint32(ci.InterfaceIndex),
		Seq:        s.seq,
	}, nil
}

func (s *Source) LinkType() layers.LinkType {
	return s.reader.LinkType()
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}
