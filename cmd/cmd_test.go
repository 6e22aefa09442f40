package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/wire"
	"firestige.xyz/flowkey/internal/sink/proto"
)

const (
	ipv4Frame = "001122334455 66778899aabb 8100 0064 0800" +
		" 4500001400000000400600000a0000010a000002"
	mplsFrame = "001122334455 66778899aabb 8847 003e8b3f" +
		" 4500001400000000400600000a0000010a000002"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	require.NoError(t, err)
	return c
}

func frameBytes(t testing.TB, etherType uint16) []byte {
	t.Helper()
	data, err := parseHex("001122334455 66778899aabb")
	require.NoError(t, err)
	data = append(data, byte(etherType>>8), byte(etherType))
	return append(data, make([]byte, 40)...)
}

func writePcap(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func ptFlag(t *testing.T, s string) packetTypeFlag {
	t.Helper()
	var f packetTypeFlag
	require.NoError(t, f.Set(s))
	return f
}

func TestPacketTypeFlag(t *testing.T) {
	var f packetTypeFlag
	assert.Equal(t, "", f.String())
	pt, explicit := f.resolve(wire.PTEth)
	assert.Equal(t, wire.PTEth, pt)
	assert.False(t, explicit)

	require.NoError(t, f.Set("mpls"))
	assert.Equal(t, "packet-type", f.Type())
	pt, explicit = f.resolve(wire.PTEth)
	assert.Equal(t, wire.PTMPLS, pt)
	assert.True(t, explicit)

	assert.Error(t, f.Set("bogus"))
}

func TestRootCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"layout"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Contains(t, buf.String(), "flow record: 672 bytes")
	require.NotNil(t, cfg)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestParseHex(t *testing.T) {
	data, err := parseHex("0x00:11 22\n33")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, data)

	_, err = parseHex("0g")
	assert.Error(t, err)
	_, err = parseHex("001")
	assert.Error(t, err)
}

func TestRunLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runLayout(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "flow record: 672 bytes, 84 words\n"))
	assert.Contains(t, out, "FIELD")
	assert.Regexp(t, `(?m)^in_port\s+428\s+4\s+53$`, out)
	assert.Regexp(t, `(?m)^tunnel\.metadata\.opts\s+88\s+256\s+11-42$`, out)
	assert.Regexp(t, `(?m)^dl_src\s+478\s+6\s+59-60$`, out)
}

func TestRunInspectVLAN(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runInspect(testConfig(t), inspectOptions{inPort: 4}, ipv4Frame, &buf))

	out := buf.String()
	assert.Contains(t, out, "in_port=4 dl_type=IPv4 consumed=18 vlans=1")
	assert.Contains(t, out, "\n  w53 ")
	assert.Contains(t, out, "packet_type=eth dl_type=IPv4\n")
	assert.Contains(t, out, "dl_dst=00:11:22:33:44:55 dl_src=66:77:88:99:aa:bb\n")
	assert.Contains(t, out, "vlan[0] tpid=0x8100 vid=100 pcp=0 dei=false\n")
	assert.NotContains(t, out, "mpls[")
}

func TestRunInspectMPLS(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runInspect(testConfig(t), inspectOptions{}, mplsFrame, &buf))

	out := buf.String()
	assert.Contains(t, out, "mpls=1/1@14")
	assert.Contains(t, out, "mpls[0] label=1000 tc=5 ttl=63 bos=true\n")
	assert.Contains(t, out, "consumed=18\n")
}

func TestRunInspectPacketType(t *testing.T) {
	var buf bytes.Buffer
	opts := inspectOptions{packetType: ptFlag(t, "ipv4")}
	require.NoError(t, runInspect(testConfig(t), opts, "4500001400000000400600000a0000010a000002", &buf))

	out := buf.String()
	assert.Contains(t, out, "packet_type=ethertype(IPv4) dl_type=IPv4\n")
	assert.NotContains(t, out, "dl_dst=")
	assert.Contains(t, out, "consumed=0\n")
}

func TestRunInspectMetadataProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "md.yaml")
	require.NoError(t, os.WriteFile(path, []byte("in_port: 9\nskb_priority: 3\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runInspect(testConfig(t), inspectOptions{metadata: path}, ipv4Frame, &buf))

	out := buf.String()
	assert.Contains(t, out, "in_port=9 ")
	assert.Contains(t, out, "\n  w52 0x0000000000000003 skb_priority,pkt_mark\n")
}

func TestRunInspectErrors(t *testing.T) {
	c := testConfig(t)

	err := runInspect(c, inspectOptions{}, "00112233", io.Discard)
	assert.True(t, errors.Is(err, core.ErrBadLength))

	err = runInspect(c, inspectOptions{}, "zz", io.Discard)
	assert.Error(t, err)

	err = runInspect(c, inspectOptions{metadata: "/nonexistent/md.yaml"}, ipv4Frame, io.Discard)
	assert.Error(t, err)
}

func TestRunExtractText(t *testing.T) {
	path := writePcap(t, frameBytes(t, 0x0800), frameBytes(t, 0x86dd), frameBytes(t, 0x0806))

	var buf bytes.Buffer
	opts := extractOptions{readFile: path, inPort: 2, workers: 2, output: "-"}
	require.NoError(t, runExtract(context.Background(), testConfig(t), opts, &buf))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "seq=1 in_port=2 dl_type=IPv4 consumed=14 vlans=0 "))
	assert.True(t, strings.HasPrefix(lines[1], "seq=2 in_port=2 dl_type=IPv6 "))
	assert.True(t, strings.HasPrefix(lines[2], "seq=3 in_port=2 dl_type=ARP "))
}

func TestRunExtractProtoFile(t *testing.T) {
	path := writePcap(t, frameBytes(t, 0x0800), frameBytes(t, 0x0800)[:10], frameBytes(t, 0x8847))
	out := filepath.Join(t.TempDir(), "keys.bin")

	opts := extractOptions{readFile: path, format: "proto", output: out}
	require.NoError(t, runExtract(context.Background(), testConfig(t), opts, io.Discard))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	r := proto.NewReader(f)
	var seqs []uint64
	for {
		p, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		seqs = append(seqs, p.Seq)
	}
	// The short second frame yields no record.
	assert.Equal(t, []uint64{1, 3}, seqs)
}

func TestRunExtractBPFFilter(t *testing.T) {
	prog, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 1},
		bpf.RetConstant{Val: 65535},
		bpf.RetConstant{Val: 0},
	})
	require.NoError(t, err)

	c := testConfig(t)
	for _, ins := range prog {
		c.Filter.Instructions = append(c.Filter.Instructions,
			config.Instruction{Op: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K})
	}

	path := writePcap(t, frameBytes(t, 0x86dd), frameBytes(t, 0x0800), frameBytes(t, 0x0806))
	var buf bytes.Buffer
	require.NoError(t, runExtract(context.Background(), c, extractOptions{readFile: path}, &buf))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "seq=2 "))
}

func TestRunExtractDedup(t *testing.T) {
	path := writePcap(t,
		frameBytes(t, 0x0800), frameBytes(t, 0x0800), frameBytes(t, 0x86dd), frameBytes(t, 0x0800))

	var buf bytes.Buffer
	opts := extractOptions{readFile: path, dedupTTL: time.Minute, workers: 2}
	require.NoError(t, runExtract(context.Background(), testConfig(t), opts, &buf))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "seq=1 "))
	assert.True(t, strings.HasPrefix(lines[1], "seq=3 "))
}

func TestRunExtractErrors(t *testing.T) {
	c := testConfig(t)

	err := runExtract(context.Background(), c, extractOptions{readFile: "/nonexistent.pcap"}, io.Discard)
	assert.Error(t, err)

	path := writePcap(t, frameBytes(t, 0x0800))
	err = runExtract(context.Background(), c, extractOptions{readFile: path, format: "xml"}, io.Discard)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	// raw IPv4 input in an Ethernet capture: the explicit type wins
	var buf bytes.Buffer
	opts := extractOptions{readFile: path, packetType: ptFlag(t, "ipv4")}
	require.NoError(t, runExtract(context.Background(), c, opts, &buf))
	assert.Contains(t, buf.String(), "dl_type=IPv4 consumed=0 ")
}
