package sink

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/sink/kafka"
	"firestige.xyz/flowkey/internal/sink/proto"
)

func TestNewUnknownFormat(t *testing.T) {
	_, err := New("xml", io.Discard)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.bin")
	s, err := Open(config.OutputConfig{Format: "proto", Path: path})
	require.NoError(t, err)

	require.NoError(t, s.Write(&core.ExtractedPacket{Seq: 1, L2_5Offset: -1}))
	require.NoError(t, s.Write(&core.ExtractedPacket{Seq: 2, L2_5Offset: -1}))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := proto.NewReader(f)
	p, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Seq)
	p, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.Seq)
	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open(config.OutputConfig{Format: "text", Path: filepath.Join(t.TempDir(), "missing", "out.txt")})
	assert.Error(t, err)
}

func TestSetVerbose(t *testing.T) {
	var buf bytes.Buffer
	s, err := New("text", &buf)
	require.NoError(t, err)
	SetVerbose(s, true)

	p := &core.ExtractedPacket{L2_5Offset: -1}
	p.Key.Map.Set(53)
	p.Key.Values = []uint64{0x500000000}
	require.NoError(t, s.Write(p))
	require.NoError(t, s.Flush())
	assert.Contains(t, buf.String(), "\n  w53 ")

	// proto sinks have no word listing
	ps, err := New("proto", io.Discard)
	require.NoError(t, err)
	assert.NotPanics(t, func() { SetVerbose(ps, true) })
}

func keyed(seq uint64, inPort uint32) *core.ExtractedPacket {
	p := &core.ExtractedPacket{Seq: seq, InPort: inPort, L2_5Offset: -1}
	p.Key.Map.Set(53)
	p.Key.Values = []uint64{uint64(inPort) << 32}
	return p
}

type countSink struct {
	seqs []uint64
}

func (c *countSink) Write(p *core.ExtractedPacket) error {
	c.seqs = append(c.seqs, p.Seq)
	return nil
}
func (c *countSink) Flush() error { return nil }
func (c *countSink) Close() error { return nil }

func TestDedup(t *testing.T) {
	inner := &countSink{}
	assert.Same(t, Sink(inner), Dedup(inner, 0), "disabled without a ttl")

	s := Dedup(inner, time.Minute)
	require.NoError(t, s.Write(keyed(1, 1)))
	require.NoError(t, s.Write(keyed(2, 1)))
	require.NoError(t, s.Write(keyed(3, 2)))
	require.NoError(t, s.Write(keyed(4, 1)))

	assert.Equal(t, []uint64{1, 3}, inner.seqs)
	d := s.(*DedupSink)
	assert.Equal(t, uint64(2), d.Dropped())
	assert.Equal(t, 2, d.Distinct())
}

func TestDedupExpiry(t *testing.T) {
	inner := &countSink{}
	s := Dedup(inner, 20*time.Millisecond)

	require.NoError(t, s.Write(keyed(1, 1)))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, s.Write(keyed(2, 1)))
	assert.Equal(t, []uint64{1, 2}, inner.seqs)
}

func TestOpenKafka(t *testing.T) {
	s, err := Open(config.OutputConfig{Kafka: config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "flow-keys",
	}})
	require.NoError(t, err)
	assert.IsType(t, &kafka.Sink{}, s)
	require.NoError(t, s.Close())
}
