//go:build linux

package cmd

import (
	"golang.org/x/net/bpf"

	"firestige.xyz/flowkey/internal/source"
	"firestige.xyz/flowkey/internal/source/afpacket"
)

func openLive(iface string, inPort uint32, program []bpf.RawInstruction) (source.Source, error) {
	return afpacket.Open(afpacket.Config{
		Device: iface,
		InPort: inPort,
		Filter: program,
	})
}
