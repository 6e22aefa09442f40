package config

import (
	"golang.org/x/net/bpf"
)

// FilterConfig selects which packets are extracted. Instructions take
// precedence over Expression; with neither set every packet passes.
type FilterConfig struct {
	// Expression is a pcap filter expression, compiled at startup.
	Expression string `mapstructure:"expression"`
	// Instructions is a classic BPF program, as printed by `tcpdump -dd`.
	Instructions []Instruction `mapstructure:"instructions"`
	SnapLen      int           `mapstructure:"snap_len"`
	// InPorts, when not empty, keeps only packets received on these ports.
	InPorts []uint32 `mapstructure:"in_ports"`
}

// Instruction is one raw classic BPF instruction.
type Instruction struct {
	Op uint16 `mapstructure:"op"`
	Jt uint8  `mapstructure:"jt"`
	Jf uint8  `mapstructure:"jf"`
	K  uint32 `mapstructure:"k"`
}

// Program returns Instructions as raw BPF. It fails when an instruction
// does not decode.
func (f *FilterConfig) Program() ([]bpf.RawInstruction, error) {
	if len(f.Instructions) == 0 {
		return nil, nil
	}
	raw := make([]bpf.RawInstruction, len(f.Instructions))
	for i, ins := range f.Instructions {
		raw[i] = bpf.RawInstruction{Op: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	if _, ok := bpf.Disassemble(raw); !ok {
		return nil, invalid("filter.instructions: not a valid BPF program")
	}
	return raw, nil
}
