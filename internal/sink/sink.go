// Package sink writes extracted flow keys.
package sink

import (
	"fmt"
	"io"
	"os"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/sink/console"
	"firestige.xyz/flowkey/internal/sink/kafka"
	"firestige.xyz/flowkey/internal/sink/proto"
)

// Sink consumes extracted packets in order. Implementations are not safe
// for concurrent use.
type Sink interface {
	Write(p *core.ExtractedPacket) error
	Flush() error
	Close() error
}

// New creates a sink of the given format writing to w.
func New(format string, w io.Writer) (Sink, error) {
	switch format {
	case console.Name, "":
		return console.NewSink(w), nil
	case proto.Name:
		return proto.NewSink(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q: %w", format, core.ErrConfigInvalid)
}

// Open creates the sink described by cfg. A path of "-" writes to stdout.
// A configured Kafka topic takes precedence over the path.
func Open(cfg config.OutputConfig) (Sink, error) {
	if cfg.Kafka.Enabled() {
		k := cfg.Kafka
		return kafka.NewSink(kafka.Config{
			Brokers:      k.Brokers,
			Topic:        k.Topic,
			BatchSize:    k.BatchSize,
			BatchTimeout: k.BatchTimeout,
			Compression:  k.Compression,
			MaxAttempts:  k.MaxAttempts,
		})
	}
	if cfg.Path == "" || cfg.Path == "-" {
		return New(cfg.Format, os.Stdout)
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output %s: %w", cfg.Path, err)
	}
	s, err := New(cfg.Format, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSink{Sink: s, f: f}, nil
}

type fileSink struct {
	Sink
	f *os.File
}

func (s *fileSink) Close() error {
	err := s.Sink.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// SetVerbose turns word listings on or off for text sinks. Other formats
// ignore it.
func SetVerbose(s Sink, v bool) {
	if d, ok := s.(*DedupSink); ok {
		s = d.Sink
	}
	if fs, ok := s.(*fileSink); ok {
		s = fs.Sink
	}
	if c, ok := s.(*console.Sink); ok {
		c.Verbose = v
	}
}
