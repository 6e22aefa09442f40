package sink

import (
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/metrics"
)

// DedupSink passes each distinct flow key through once per TTL and drops
// repeats. Keys compare on the whole miniflow, metadata words included.
type DedupSink struct {
	Sink
	seen *cache.Cache
	key  []byte

	dropped uint64
}

// Dedup wraps s. A non-positive ttl returns s unchanged.
func Dedup(s Sink, ttl time.Duration) Sink {
	if ttl <= 0 {
		return s
	}
	return &DedupSink{
		Sink: s,
		seen: cache.New(ttl, 2*ttl),
	}
}

func (d *DedupSink) Write(p *core.ExtractedPacket) error {
	d.key = p.Key.AppendBytes(d.key[:0])
	if err := d.seen.Add(string(d.key), struct{}{}, cache.DefaultExpiration); err != nil {
		d.dropped++
		metrics.DuplicateKeysTotal.Inc()
		return nil
	}
	return d.Sink.Write(p)
}

// Dropped returns the number of repeats not written.
func (d *DedupSink) Dropped() uint64 { return d.dropped }

// Distinct returns the number of keys currently remembered.
func (d *DedupSink) Distinct() int { return d.seen.ItemCount() }
