package file

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowkey/internal/core"
)

var frames = [][]byte{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 0x08, 0x00, 0x45},
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 0x86, 0xdd},
}

func writePcap(t *testing.T, lt layers.LinkType) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, lt))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(100+i), 0),
			CaptureLength: len(f),
			Length:        len(f) + 10,
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return buf.Bytes()
}

func writePcapng(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(200+i), 0),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func readAll(t *testing.T, s *Source) []core.RawPacket {
	t.Helper()
	var out []core.RawPacket
	for {
		p, err := s.ReadPacket()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func TestReadPcap(t *testing.T) {
	s, err := NewReader(bytes.NewReader(writePcap(t, layers.LinkTypeEthernet)), Config{InPort: 4})
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, s.LinkType())

	pkts := readAll(t, s)
	require.Len(t, pkts, 2)
	assert.Equal(t, frames[0], pkts[0].Data)
	assert.Equal(t, uint64(1), pkts[0].Seq)
	assert.Equal(t, uint64(2), pkts[1].Seq)
	assert.Equal(t, uint32(4), pkts[1].InPort)
	assert.Equal(t, uint32(len(frames[0])), pkts[0].CaptureLen)
	assert.Equal(t, uint32(len(frames[0])+10), pkts[0].OrigLen)
	assert.True(t, pkts[1].Timestamp.Equal(time.Unix(101, 0)))
}

func TestReadPcapng(t *testing.T) {
	s, err := NewReader(bytes.NewReader(writePcapng(t)), Config{InPort: 1})
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, s.LinkType())

	pkts := readAll(t, s)
	require.Len(t, pkts, 2)
	assert.Equal(t, frames[1], pkts[1].Data)
	assert.Equal(t, uint32(1), pkts[0].InPort)
	assert.True(t, pkts[0].Timestamp.Equal(time.Unix(200, 0)))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, os.WriteFile(path, writePcap(t, layers.LinkTypeRaw), 0o644))

	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, s.LinkType())

	_, err = s.ReadPacket()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ReadPacket()
	assert.True(t, errors.Is(err, core.ErrSourceClosed))
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(Config{})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = Open(Config{Path: filepath.Join(t.TempDir(), "missing.pcap")})
	assert.Error(t, err)

	_, err = NewReader(bytes.NewReader([]byte{1, 2}), Config{})
	assert.Error(t, err)

	_, err = NewReader(bytes.NewReader([]byte("not a capture file")), Config{})
	assert.Error(t, err)
}

func TestTruncatedFile(t *testing.T) {
	data := writePcap(t, layers.LinkTypeEthernet)
	s, err := NewReader(bytes.NewReader(data[:len(data)-3]), Config{})
	require.NoError(t, err)
	assert.Len(t, readAll(t, s), 1)
}
