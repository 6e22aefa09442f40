package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/core/decoder"
	"firestige.xyz/flowkey/internal/core/wire"
	"firestige.xyz/flowkey/internal/filter"
	"firestige.xyz/flowkey/internal/log"
	"firestige.xyz/flowkey/internal/metrics"
	"firestige.xyz/flowkey/internal/pipeline"
	"firestige.xyz/flowkey/internal/sink"
	"firestige.xyz/flowkey/internal/source"
	"firestige.xyz/flowkey/internal/source/file"
)

// extractOptions are command-line overrides of the loaded configuration.
type extractOptions struct {
	readFile   string
	iface      string
	inPort     uint32
	format     string
	output     string
	metadata   string
	filterExpr string
	packetType packetTypeFlag
	workers    int
	verbose    bool
	dedupTTL   time.Duration
}

var extractOpts extractOptions

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract flow keys from a capture file or interface",
	Long: `Read packets from a pcap/pcapng file or a live interface, extract the
flow key of every packet and write one record per packet in input order.

Examples:
  flowkey extract -r trace.pcap                      # text records on stdout
  flowkey extract -r trace.pcapng -f proto -o keys.bin
  flowkey extract -i eth0 --filter "vlan or mpls" -w 4
  flowkey extract -r trace.pcap --metadata md.yaml   # apply a metadata profile
  flowkey extract -i eth0 --dedup-ttl 1m             # distinct flows only`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runExtract(ctx, cfg, extractOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractOpts.readFile, "read", "r", "", "pcap or pcapng file to read")
	f.StringVarP(&extractOpts.iface, "interface", "i", "", "interface to capture from (linux only)")
	f.Uint32Var(&extractOpts.inPort, "in-port", 0, "datapath in_port of read packets (0 = interface index)")
	f.StringVarP(&extractOpts.format, "format", "f", "", "output format: text or proto (overrides output.format)")
	f.StringVarP(&extractOpts.output, "output", "o", "", "output path, - for stdout (overrides output.path)")
	f.StringVar(&extractOpts.metadata, "metadata", "", "YAML metadata profile applied to every packet")
	f.StringVar(&extractOpts.filterExpr, "filter", "", "pcap filter expression (overrides filter.expression)")
	f.Var(&extractOpts.packetType, "packet-type", "packet type of the input: eth, ipv4, ipv6, mpls, ... or ns,type (default: from the link type)")
	f.IntVarP(&extractOpts.workers, "workers", "w", 0, "extraction workers (overrides pipeline.workers)")
	f.DurationVar(&extractOpts.dedupTTL, "dedup-ttl", 0, "write each distinct flow key once per interval (overrides output.dedup_ttl)")
	f.BoolVarP(&extractOpts.verbose, "verbose", "v", false, "list the populated words of each text record")
	extractCmd.MarkFlagsMutuallyExclusive("read", "interface")
	extractCmd.MarkFlagsOneRequired("read", "interface")
}

// applyOverrides folds flags into a copy of c and validates the result.
func (o extractOptions) applyOverrides(c config.Config) (*config.Config, error) {
	if o.format != "" {
		c.Output.Format = o.format
	}
	if o.output != "" {
		c.Output.Path = o.output
	}
	if o.filterExpr != "" {
		c.Filter.Expression = o.filterExpr
		c.Filter.Instructions = nil
	}
	if o.dedupTTL > 0 {
		c.Output.DedupTTL = o.dedupTTL
	}
	if o.workers > 0 {
		c.Pipeline.Workers = o.workers
	}
	if o.metadata != "" {
		md, err := config.LoadMetadataProfile(o.metadata)
		if err != nil {
			return nil, err
		}
		c.Metadata = *md
	}
	if err := c.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return &c, nil
}

func runExtract(ctx context.Context, base *config.Config, opts extractOptions, stdout io.Writer) error {
	c, err := opts.applyOverrides(*base)
	if err != nil {
		return err
	}
	logger := log.GetLogger().WithField("component", "extract")

	src, err := openSource(c, opts)
	if err != nil {
		return err
	}
	defer src.Close()

	pt, explicit := opts.packetType.resolve(c.Decoder.Type())
	if !explicit && pt == wire.PTEth {
		if pt, err = source.PacketType(src.LinkType()); err != nil {
			return err
		}
	}

	fc := c.Filter
	if opts.iface != "" {
		// The BPF program already runs in the kernel.
		fc.Expression, fc.Instructions = "", nil
	}
	chain, err := filter.FromConfig(&fc)
	if err != nil {
		return err
	}

	out, err := openSink(c.Output, stdout, opts.verbose)
	if err != nil {
		return err
	}
	defer out.Close()

	if c.Metrics.Enabled {
		srv := metrics.NewServer(c.Metrics.Listen, c.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	b := pipeline.NewBuilder().
		WithSource(src).
		WithSink(out).
		WithDecoder(decoder.Config{PacketType: pt, MaxMPLSScan: c.Decoder.MaxMPLSScan}).
		WithMetadata(c.Metadata.PktMetadata()).
		WithWorkers(c.Pipeline.Workers).
		WithBufferSize(c.Pipeline.BufferSize).
		WithWarnLimit(c.Pipeline.WarnBurst, c.Pipeline.WarnInterval)
	if chain.Len() > 0 {
		b = b.WithFilter(chain)
	}
	p, err := b.Build()
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"packet_type": pt.String(),
		"format":      c.Output.Format,
		"output":      c.Output.Path,
		"filters":     chain.Len(),
	}).Info("extracting flow keys")

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	return nil
}

func openSource(c *config.Config, opts extractOptions) (source.Source, error) {
	if opts.readFile != "" {
		return file.Open(file.Config{Path: opts.readFile, InPort: opts.inPort})
	}
	program, err := c.Filter.Program()
	if err != nil {
		return nil, err
	}
	if len(program) == 0 && c.Filter.Expression != "" {
		if program, err = filter.Compile(c.Filter.Expression, c.Filter.SnapLen); err != nil {
			return nil, err
		}
	}
	return openLive(opts.iface, opts.inPort, program)
}

func openSink(oc config.OutputConfig, stdout io.Writer, verbose bool) (sink.Sink, error) {
	var (
		s   sink.Sink
		err error
	)
	if oc.Path == "-" && !oc.Kafka.Enabled() {
		s, err = sink.New(oc.Format, stdout)
	} else {
		s, err = sink.Open(oc)
	}
	if err != nil {
		return nil, err
	}
	sink.SetVerbose(s, verbose)
	return sink.Dedup(s, oc.DedupTTL), nil
}
