// Package kafka publishes flow keys to a Kafka topic. Each message value is
// one proto record without the length prefix; the message key is the flow
// key itself, so packets of one flow land on one partition in order.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/log"
	"firestige.xyz/flowkey/internal/sink/proto"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultMaxAttempts  = 3
	writeTimeout        = 30 * time.Second
)

// Config contains producer settings.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string // none | gzip | snappy | lz4 | zstd
	MaxAttempts  int
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink batches messages and hands them to the producer on Flush or when a
// batch fills up.
type Sink struct {
	w         messageWriter
	batchSize int
	pending   []kafka.Message
	logger    log.Logger

	written uint64
}

// NewSink creates a producer for cfg.Topic. No connection is made until
// the first batch is sent.
func NewSink(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required: %w", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required: %w", core.ErrConfigInvalid)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	codec, err := compression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  codec,
		RequiredAcks: kafka.RequireOne,
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":     cfg.Brokers,
		"topic":       cfg.Topic,
		"batch_size":  cfg.BatchSize,
		"compression": cfg.Compression,
	}).Info("kafka sink created")

	return newSink(w, cfg.BatchSize), nil
}

func newSink(w messageWriter, batchSize int) *Sink {
	return &Sink{
		w:         w,
		batchSize: batchSize,
		pending:   make([]kafka.Message, 0, batchSize),
		logger:    log.GetLogger().WithField("sink", "kafka"),
	}
}

func compression(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("invalid kafka compression %q: %w", name, core.ErrConfigInvalid)
}

func (s *Sink) Write(p *core.ExtractedPacket) error {
	s.pending = append(s.pending, kafka.Message{
		Key:   p.Key.AppendBytes(nil),
		Value: proto.Marshal(nil, p),
		Time:  p.Timestamp,
	})
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush sends every pending message and waits for the acknowledgements.
func (s *Sink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	n := len(s.pending)
	err := s.w.WriteMessages(ctx, s.pending...)
	clear(s.pending)
	s.pending = s.pending[:0]
	if err != nil {
		return fmt.Errorf("kafka write %d messages: %w", n, err)
	}
	s.written += uint64(n)
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	err := s.Flush()
	if cerr := s.w.Close(); err == nil {
		err = cerr
	}
	s.logger.WithField("written", s.written).Info("kafka sink closed")
	return err
}
