// Package pipeline implements the packet-to-flow-key engine: one reader,
// a pool of extraction workers and one ordered writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/decoder"
	"firestige.xyz/flowkey/internal/core/flow"
	"firestige.xyz/flowkey/internal/filter"
	"firestige.xyz/flowkey/internal/log"
	"firestige.xyz/flowkey/internal/metrics"
	"firestige.xyz/flowkey/internal/sink"
	"firestige.xyz/flowkey/internal/source"
)

// Config contains pipeline configuration.
type Config struct {
	Source  source.Source
	Filter  filter.Filter // optional
	Sink    sink.Sink
	Decoder decoder.Config

	// Metadata is copied for every packet. A zero InPort takes the port
	// reported by the source.
	Metadata *flow.PktMetadata

	Workers    int // Extraction workers (default GOMAXPROCS)
	BufferSize int // Per-worker channel buffer size (default 1024)

	WarnLimit WarnLimiterConfig
}

// Pipeline reads raw packets, projects each into its flow key on a worker
// pool and writes keys to the sink in source order.
type Pipeline struct {
	cfg     Config
	metrics *Metrics
	warns   *WarnLimiter
	logger  log.Logger
	started atomic.Bool
}

// result carries one packet through the writer. Every packet read produces
// exactly one result so the writer can restore order by position.
type result struct {
	pkt core.ExtractedPacket
	ok  bool
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required: %w", core.ErrConfigInvalid)
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("pipeline: sink is required: %w", core.ErrConfigInvalid)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &Pipeline{
		cfg:     cfg,
		metrics: &Metrics{},
		warns:   NewWarnLimiter(cfg.WarnLimit),
		logger:  log.GetLogger().WithField("component", "pipeline"),
	}, nil
}

// Run processes packets until the source is exhausted, ctx is canceled or
// the sink fails. Reaching the end of the source is not an error. The sink
// is flushed but not closed. A pipeline runs once; later calls return
// core.ErrPipelineStopped.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return core.ErrPipelineStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := p.cfg.Workers
	ins := make([]chan core.RawPacket, n)
	outs := make([]chan result, n)
	for i := range ins {
		ins[i] = make(chan core.RawPacket, p.cfg.BufferSize)
		outs[i] = make(chan result, p.cfg.BufferSize)
	}

	// A blocked ReadPacket only returns once the source is closed.
	stop := context.AfterFunc(ctx, func() { p.cfg.Source.Close() })
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(id, ins[id], outs[id])
		}(i)
	}

	var readErr error
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readErr = p.readLoop(ctx, ins)
	}()

	p.logger.WithFields(map[string]interface{}{
		"workers":     n,
		"buffer_size": p.cfg.BufferSize,
	}).Info("pipeline started")

	writeErr := p.writeLoop(outs)
	if writeErr != nil {
		cancel()
		for _, out := range outs {
			for range out {
			}
		}
	}

	wg.Wait()
	<-readDone

	flushErr := p.cfg.Sink.Flush()
	st := p.Stats()
	p.logger.WithFields(map[string]interface{}{
		"received":   st.Received,
		"extracted":  st.Extracted,
		"filtered":   st.Filtered,
		"bad_length": st.BadLength,
		"errors":     st.Errors,
		"written":    st.Written,
	}).Info("pipeline stopped")

	return errors.Join(readErr, writeErr, flushErr)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return p.metrics.snapshot()
}

// SuppressedWarnings returns the number of rate-limited warnings.
func (p *Pipeline) SuppressedWarnings() int64 {
	return p.warns.Suppressed()
}

// readLoop dispatches packets round-robin. It closes every input channel on
// return, which ends the workers and, through them, the writer.
func (p *Pipeline) readLoop(ctx context.Context, ins []chan core.RawPacket) error {
	defer func() {
		for _, in := range ins {
			close(in)
		}
	}()

	for i := 0; ; i++ {
		raw, err := p.cfg.Source.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || errors.Is(err, core.ErrSourceClosed) {
				return nil
			}
			return fmt.Errorf("pipeline: read packet: %w", err)
		}
		p.metrics.Received.Add(1)

		select {
		case ins[i%len(ins)] <- raw:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pipeline) work(id int, in <-chan core.RawPacket, out chan<- result) {
	defer close(out)

	ext := decoder.NewExtractor(p.cfg.Decoder)
	md := new(flow.PktMetadata)
	logger := p.logger.WithField("worker", id)

	for raw := range in {
		out <- p.process(ext, md, logger, &raw)
	}
}

func (p *Pipeline) process(ext *decoder.Extractor, md *flow.PktMetadata, logger log.Logger, raw *core.RawPacket) result {
	if p.cfg.Filter != nil && !p.cfg.Filter.Match(raw) {
		p.metrics.Filtered.Add(1)
		metrics.PacketsTotal.WithLabelValues(metrics.ResultFiltered).Inc()
		return result{}
	}

	if p.cfg.Metadata != nil {
		*md = *p.cfg.Metadata
	} else {
		*md = flow.PktMetadata{}
	}
	if md.InPort.ODPPort == 0 {
		md.InPort.ODPPort = raw.InPort
	}

	start := time.Now()
	pkt, err := ext.Decode(*raw, md)
	metrics.ExtractLatencySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, core.ErrBadLength) {
			p.metrics.BadLength.Add(1)
			metrics.PacketsTotal.WithLabelValues(metrics.ResultBadLength).Inc()
		} else {
			p.metrics.Errors.Add(1)
			metrics.PacketsTotal.WithLabelValues(metrics.ResultError).Inc()
		}
		if p.warns.Allow(md.InPort.ODPPort, start) {
			logger.WithError(err).WithFields(map[string]interface{}{
				"seq":     raw.Seq,
				"in_port": md.InPort.ODPPort,
			}).Warn("flow key extraction failed")
		}
		return result{}
	}

	p.metrics.Extracted.Add(1)
	metrics.ObserveExtracted(&pkt)
	return result{pkt: pkt, ok: true}
}

// writeLoop takes results in dispatch order: packet i went to worker i%n,
// and each worker answers in the order it was fed.
func (p *Pipeline) writeLoop(outs []chan result) error {
	for i := 0; ; i++ {
		r, open := <-outs[i%len(outs)]
		if !open {
			return nil
		}
		if !r.ok {
			continue
		}
		if err := p.cfg.Sink.Write(&r.pkt); err != nil {
			p.metrics.WriteErrors.Add(1)
			return fmt.Errorf("pipeline: write key seq=%d: %w", r.pkt.Seq, err)
		}
		p.metrics.Written.Add(1)
	}
}
