package pipeline

import (
	"time"

	"firestige.xyz/flowkey/internal/core/decoder"
	"firestige.xyz/flowkey/internal/core/flow"
	"firestige.xyz/flowkey/internal/filter"
	"firestige.xyz/flowkey/internal/sink"
	"firestige.xyz/flowkey/internal/source"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Workers:    1,
			BufferSize: 1024,
		},
	}
}

// WithSource sets the packet source.
func (b *Builder) WithSource(s source.Source) *Builder {
	b.config.Source = s
	return b
}

// WithFilter sets the pre-extraction filter.
func (b *Builder) WithFilter(f filter.Filter) *Builder {
	b.config.Filter = f
	return b
}

// WithSink sets the key sink.
func (b *Builder) WithSink(s sink.Sink) *Builder {
	b.config.Sink = s
	return b
}

// WithDecoder sets the extraction settings.
func (b *Builder) WithDecoder(cfg decoder.Config) *Builder {
	b.config.Decoder = cfg
	return b
}

// WithMetadata sets the metadata template applied to every packet.
func (b *Builder) WithMetadata(md *flow.PktMetadata) *Builder {
	b.config.Metadata = md
	return b
}

// WithWorkers sets the number of extraction workers.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithBufferSize sets the per-worker channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// WithWarnLimit bounds extraction warnings per in_port.
func (b *Builder) WithWarnLimit(burst int, interval time.Duration) *Builder {
	b.config.WarnLimit = WarnLimiterConfig{Burst: burst, Interval: interval}
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}
