// Package filter decides which packets reach extraction.
package filter

import (
	"fmt"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/core"
)

// Filter accepts or rejects a raw packet.
type Filter interface {
	Match(pkt *core.RawPacket) bool
}

// Chain accepts a packet only when every filter does. An empty chain
// accepts everything.
type Chain struct {
	filters []Filter
}

// NewChain builds a chain; nil filters are skipped.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{filters: make([]Filter, 0, len(filters))}
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}
	return c
}

func (c *Chain) Match(pkt *core.RawPacket) bool {
	for _, f := range c.filters {
		if !f.Match(pkt) {
			return false
		}
	}
	return true
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int { return len(c.filters) }

// InPort accepts packets received on one of a set of ports.
type InPort map[uint32]struct{}

// NewInPort returns nil for an empty port list.
func NewInPort(ports []uint32) InPort {
	if len(ports) == 0 {
		return nil
	}
	f := make(InPort, len(ports))
	for _, p := range ports {
		f[p] = struct{}{}
	}
	return f
}

func (f InPort) Match(pkt *core.RawPacket) bool {
	_, ok := f[pkt.InPort]
	return ok
}

// FromConfig builds the filter chain described by cfg.
func FromConfig(cfg *config.FilterConfig) (*Chain, error) {
	var filters []Filter

	raw, err := cfg.Program()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 && cfg.Expression != "" {
		if raw, err = Compile(cfg.Expression, cfg.SnapLen); err != nil {
			return nil, fmt.Errorf("filter expression %q: %w", cfg.Expression, err)
		}
	}
	if len(raw) > 0 {
		b, err := NewBPF(raw)
		if err != nil {
			return nil, err
		}
		filters = append(filters, b)
	}

	if ports := NewInPort(cfg.InPorts); ports != nil {
		filters = append(filters, ports)
	}
	return NewChain(filters...), nil
}
