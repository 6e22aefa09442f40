//go:build !cgo

package filter

import (
	"errors"

	"golang.org/x/net/bpf"
)

// Compile needs libpcap; without cgo only raw instructions are supported.
func Compile(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	return nil, errors.New("filter expressions need a cgo build with libpcap; use filter.instructions")
}
