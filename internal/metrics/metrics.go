// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/flowkey/internal/core"
	"firestige.xyz/flowkey/internal/core/flow"
)

// Values of the result label of PacketsTotal.
const (
	ResultExtracted = "extracted"
	ResultFiltered  = "filtered"
	ResultBadLength = "bad_length"
	ResultError     = "error"
)

var (
	// PacketsTotal counts packets by extraction outcome
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowkey_packets_total",
			Help: "Total number of packets by extraction result",
		},
		[]string{"result"},
	)

	// VLANTagsTotal counts VLAN tags stored in keys
	VLANTagsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowkey_vlan_tags_total",
			Help: "Total number of VLAN tags stored in flow keys",
		},
	)

	// MPLSLabelsTruncatedTotal counts label stack entries consumed but not stored
	MPLSLabelsTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowkey_mpls_labels_truncated_total",
			Help: "Total number of MPLS label stack entries consumed past the stored depth",
		},
	)

	// DuplicateKeysTotal counts keys dropped by output deduplication
	DuplicateKeysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowkey_duplicate_keys_total",
			Help: "Total number of flow keys not written because they were seen within the dedup TTL",
		},
	)

	// MiniflowWords tracks how many words each key populates
	MiniflowWords = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowkey_miniflow_words",
			Help:    "Number of populated 64-bit words per flow key",
			Buckets: prometheus.LinearBuckets(2, 2, 24), // 2, 4, ..., 48
		},
	)

	// ExtractLatencySeconds measures the projection of one packet
	ExtractLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowkey_extract_latency_seconds",
			Help:    "Latency of flow key extraction in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00000005, 2, 16), // 50ns to ~1.6ms
		},
	)

	// FlowRecordWords exposes the size of the canonical record
	FlowRecordWords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowkey_flow_record_words",
			Help: "Number of 64-bit words in the canonical flow record",
		},
	)
)

func init() {
	FlowRecordWords.Set(flow.U64s)
}

// ObserveExtracted records a successful extraction.
func ObserveExtracted(p *core.ExtractedPacket) {
	PacketsTotal.WithLabelValues(ResultExtracted).Inc()
	VLANTagsTotal.Add(float64(p.VLANs))
	if extra := p.MPLSScanned - p.MPLSLabels; extra > 0 {
		MPLSLabelsTruncatedTotal.Add(float64(extra))
	}
	MiniflowWords.Observe(float64(p.Key.Map.CountOnes()))
}
