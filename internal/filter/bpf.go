package filter

import (
	"fmt"

	"golang.org/x/net/bpf"

	"firestige.xyz/flowkey/internal/core"
)

// BPF runs a classic BPF program over the packet bytes in user space.
// A program returning zero rejects the packet.
type BPF struct {
	vm  *bpf.VM
	raw []bpf.RawInstruction
}

// NewBPF loads a raw program.
func NewBPF(raw []bpf.RawInstruction) (*BPF, error) {
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("bpf program does not decode: %w", core.ErrConfigInvalid)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("bpf program: %v: %w", err, core.ErrConfigInvalid)
	}
	return &BPF{vm: vm, raw: raw}, nil
}

// Match runs the program. A program error, such as an out-of-bounds load,
// rejects the packet.
func (b *BPF) Match(pkt *core.RawPacket) bool {
	n, err := b.vm.Run(pkt.Data)
	return err == nil && n > 0
}

// Program returns the raw instructions, for attaching to a socket.
func (b *BPF) Program() []bpf.RawInstruction { return b.raw }
