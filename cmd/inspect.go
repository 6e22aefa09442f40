package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/core/decoder"
	"firestige.xyz/flowkey/internal/sink/console"
)

type inspectOptions struct {
	packetType packetTypeFlag
	metadata   string
	inPort     uint32
}

var inspectOpts inspectOptions

var inspectCmd = &cobra.Command{
	Use:   "inspect <hex>...",
	Short: "Extract the flow key of one frame given as hex",
	Long: `Extract the flow key of a single frame and print every populated word
with the fields it holds, followed by the decoded L2 fields.

Whitespace, colons and a leading 0x in the hex input are ignored.

Examples:
  flowkey inspect 001122334455 66778899aabb 0800 45000014...
  flowkey inspect --packet-type ipv4 45000014...
  flowkey inspect --metadata md.yaml --in-port 3 $(xxd -p frame.bin)`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cfg, inspectOpts, strings.Join(args, ""), cmd.OutOrStdout())
	},
}

func init() {
	inspectCmd.Flags().Var(&inspectOpts.packetType, "packet-type",
		"packet type of the frame: eth, ipv4, ipv6, mpls, ... or ns,type (default decoder.packet_type)")
	inspectCmd.Flags().StringVar(&inspectOpts.metadata, "metadata", "", "YAML metadata profile")
	inspectCmd.Flags().Uint32Var(&inspectOpts.inPort, "in-port", 0, "datapath in_port (overrides metadata)")
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return data, nil
}

func runInspect(c *config.Config, opts inspectOptions, frame string, w io.Writer) error {
	data, err := parseHex(frame)
	if err != nil {
		return err
	}

	pt, _ := opts.packetType.resolve(c.Decoder.Type())

	mdc := c.Metadata
	if opts.metadata != "" {
		profile, err := config.LoadMetadataProfile(opts.metadata)
		if err != nil {
			return err
		}
		mdc = *profile
	}
	md := mdc.PktMetadata()
	if opts.inPort != 0 {
		md.InPort.ODPPort = opts.inPort
	}

	ext := decoder.NewExtractor(decoder.Config{PacketType: pt, MaxMPLSScan: c.Decoder.MaxMPLSScan})
	pkt, err := ext.Extract(data, pt, md)
	if err != nil {
		return err
	}
	pkt.InPort = md.InPort.ODPPort

	s := console.NewSink(w)
	s.Verbose = true
	if err := s.Write(&pkt); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}

	f := pkt.Key.Expand()
	fmt.Fprintf(w, "packet_type=%s dl_type=%s\n", f.PacketType(), f.DlType())
	if pt.IsEthernet() {
		fmt.Fprintf(w, "dl_dst=%s dl_src=%s\n", f.DlDst(), f.DlSrc())
	}
	vlans := f.Vlans()
	for i := 0; i < pkt.VLANs; i++ {
		v := vlans[i]
		fmt.Fprintf(w, "vlan[%d] tpid=%#04x vid=%d pcp=%d dei=%t\n", i, v.TPID, v.VID(), v.PCP(), v.DEI())
	}
	lses := f.MplsLse()
	for i := 0; i < pkt.MPLSLabels; i++ {
		l := lses[i]
		fmt.Fprintf(w, "mpls[%d] label=%d tc=%d ttl=%d bos=%t\n", i, l.Label(), l.TC(), l.TTL(), l.BOS())
	}
	_, err = fmt.Fprintf(w, "words=%d consumed=%d\n", pkt.Key.Map.CountOnes(), pkt.Consumed)
	return err
}
