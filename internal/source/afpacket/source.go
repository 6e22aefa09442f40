//go:build linux

// Package afpacket captures live packets from a Linux interface through a
// TPACKET_V3 ring.
package afpacket

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"

	"firestige.xyz/flowkey/internal/core"
)

// Config configures a live capture.
type Config struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	// InPort is reported for every packet; zero uses the interface index.
	InPort uint32 `mapstructure:"in_port"`
	// Filter is attached to the socket so rejected packets never reach
	// user space.
	Filter []bpf.RawInstruction `mapstructure:"-"`
}

// Source reads from an AF_PACKET socket.
type Source struct {
	handle *afpacket.TPacket
	inPort uint32

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// Open binds to cfg.Device.
func Open(cfg Config) (*Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("device is required: %w", core.ErrConfigInvalid)
	}
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 65535
	}
	if cfg.BufferSizeMB <= 0 {
		cfg.BufferSizeMB = 8
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 100
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, core.ErrConfigInvalid)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	if cfg.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, cfg.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("set fanout: %w", err)
		}
	}
	if len(cfg.Filter) > 0 {
		if err := tp.SetBPF(cfg.Filter); err != nil {
			tp.Close()
			return nil, fmt.Errorf("attach bpf: %w", err)
		}
	}

	inPort := cfg.InPort
	if inPort == 0 {
		if ifi, err := net.InterfaceByName(cfg.Device); err == nil {
			inPort = uint32(ifi.Index)
		}
	}
	return &Source{handle: tp, inPort: inPort}, nil
}

// ReadPacket blocks until a packet arrives. Poll timeouts are retried.
func (s *Source) ReadPacket() (core.RawPacket, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return core.RawPacket{}, core.ErrSourceClosed
		}
		data, ci, err := s.handle.ReadPacketData()
		if err == afpacket.ErrTimeout || err == afpacket.ErrPoll {
			s.mu.Unlock()
			continue
		}
		if err != nil {
			s.mu.Unlock()
			return core.RawPacket{}, err
		}
		s.seq++
		seq := s.seq
		s.mu.Unlock()

		return core.RawPacket{
			Data:       data,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
			InPort:     s.inPort,
			Seq:        seq,
		}, nil
	}
}

func (s *Source) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.handle.Close()
	}
	return nil
}
