package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	Received    atomic.Uint64
	Filtered    atomic.Uint64
	Extracted   atomic.Uint64
	BadLength   atomic.Uint64
	Errors      atomic.Uint64
	Written     atomic.Uint64
	WriteErrors atomic.Uint64
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Filtered.Store(0)
	m.Extracted.Store(0)
	m.BadLength.Store(0)
	m.Errors.Store(0)
	m.Written.Store(0)
	m.WriteErrors.Store(0)
}

// Stats is a snapshot of Metrics.
type Stats struct {
	Received    uint64
	Filtered    uint64
	Extracted   uint64
	BadLength   uint64
	Errors      uint64
	Written     uint64
	WriteErrors uint64
}

func (m *Metrics) snapshot() Stats {
	return Stats{
		Received:    m.Received.Load(),
		Filtered:    m.Filtered.Load(),
		Extracted:   m.Extracted.Load(),
		BadLength:   m.BadLength.Load(),
		Errors:      m.Errors.Load(),
		Written:     m.Written.Load(),
		WriteErrors: m.WriteErrors.Load(),
	}
}
