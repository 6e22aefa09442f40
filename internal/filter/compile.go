//go:build cgo

package filter

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

const defaultSnapLen = 262144

// Compile turns a pcap filter expression into a raw BPF program for
// Ethernet frames.
func Compile(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	if snapLen <= 0 {
		snapLen = defaultSnapLen
	}
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}

	raw := make([]bpf.RawInstruction, len(pcapBPF))
	for i, ins := range pcapBPF {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}
