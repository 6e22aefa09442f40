// Package console writes flow keys as human-readable text.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/flow"
)

const Name = "text"

// Sink writes one summary line per packet. With Verbose set, each populated
// word follows on its own line with the fields it holds.
type Sink struct {
	w       *bufio.Writer
	Verbose bool
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: bufio.NewWriter(w)}
}

func (s *Sink) Write(p *core.ExtractedPacket) error {
	fmt.Fprintf(s.w, "seq=%d in_port=%d dl_type=%s consumed=%d vlans=%d",
		p.Seq, p.InPort, p.DlType, p.Consumed, p.VLANs)
	if p.HasMPLS() {
		fmt.Fprintf(s.w, " mpls=%d/%d@%d", p.MPLSLabels, p.MPLSScanned, p.L2_5Offset)
	}
	_, err := fmt.Fprintf(s.w, " %s\n", p.Key)
	if err != nil || !s.Verbose {
		return err
	}
	return WriteWords(s.w, p)
}

// WriteWords lists the populated words of the key with the slots they cover.
func WriteWords(w io.Writer, p *core.ExtractedPacket) error {
	for i, idx := range p.Key.Map.Indices() {
		names := make([]string, 0, 4)
		for _, sl := range flow.SlotsInWord(idx) {
			names = append(names, sl.Name)
		}
		if _, err := fmt.Fprintf(w, "  w%-2d %#016x %s\n", idx, p.Key.Values[i], strings.Join(names, ",")); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Flush() error { return s.w.Flush() }

func (s *Sink) Close() error { return s.w.Flush() }
