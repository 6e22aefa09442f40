//go:build !linux

package cmd

import (
	"fmt"
	"runtime"

	"golang.org/x/net/bpf"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/source"
)

func openLive(iface string, inPort uint32, program []bpf.RawInstruction) (source.Source, error) {
	return nil, fmt.Errorf("live capture on %s is not supported on %s: %w", iface, runtime.GOOS, core.ErrConfigInvalid)
}
