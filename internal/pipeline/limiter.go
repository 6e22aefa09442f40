package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// WarnLimiter bounds how many malformed-packet warnings each in_port may
// log per window. Counts are kept per window and dropped when it rotates.
type WarnLimiter struct {
	mu           sync.Mutex
	current      map[uint32]*atomic.Int64 // in_port → warnings in current window
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int64

	suppressed atomic.Int64
}

// WarnLimiterConfig configures per-port warning limits.
type WarnLimiterConfig struct {
	Burst    int           // Max warnings per port per window (0 = unlimited)
	Interval time.Duration // Window size (default 10s)
}

// NewWarnLimiter creates a limiter. Returns nil, which allows everything,
// when Burst <= 0.
func NewWarnLimiter(cfg WarnLimiterConfig) *WarnLimiter {
	if cfg.Burst <= 0 {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &WarnLimiter{
		current:      make(map[uint32]*atomic.Int64),
		windowStart:  time.Now(),
		windowSize:   cfg.Interval,
		maxPerWindow: int64(cfg.Burst),
	}
}

// Allow reports whether a warning for port may be logged at now.
func (l *WarnLimiter) Allow(port uint32, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	if now.Sub(l.windowStart) >= l.windowSize {
		l.current = make(map[uint32]*atomic.Int64)
		l.windowStart = now
	}
	counter, ok := l.current[port]
	if !ok {
		counter = &atomic.Int64{}
		l.current[port] = counter
	}
	l.mu.Unlock()

	if counter.Add(1) > l.maxPerWindow {
		l.suppressed.Add(1)
		return false
	}
	return true
}

// Suppressed returns the number of warnings dropped so far.
func (l *WarnLimiter) Suppressed() int64 {
	if l == nil {
		return 0
	}
	return l.suppressed.Load()
}
