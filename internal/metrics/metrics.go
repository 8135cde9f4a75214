package metrics

import (
	"sync/atomic"
	"time"
)

// ID indexes a counter.
type ID uint16

const (
	SigninSuccess ID = iota
	SigninFailure
	SigninLocked
	LockoutTripped
	SignupSuccess
	SignupRejected
	SignupDuplicate
	TokenIssued
	TokenInvalid
	TokenExpired
	ThreatDetected
	RateLimitHit
	BackendError
	PasswordRehashed
	VerifyLatency
	IDCount
)

const (
	// HistBucketCount is the number of latency buckets, the last one unbounded.
	HistBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [HistBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config selects what is recorded.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics is a fixed set of counters plus the verify latency histogram.
// A nil *Metrics records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [IDCount]paddedCounter
	latency       histogram
}

// Snapshot is a point-in-time copy.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

// New creates Metrics. Latency requires Enabled.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id. Unknown ids are ignored.
func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= IDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only VerifyLatency has one.
func (m *Metrics) Observe(id ID, d time.Duration) {
	if m == nil || !m.enableLatency || id != VerifyLatency {
		return
	}
	atomic.AddUint64(&m.latency.buckets[BucketIndex(d)], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id ID) uint64 {
	if m == nil || id >= IDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the histogram.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[ID]uint64{},
			Histograms: map[ID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[ID]uint64, int(IDCount)),
		Histograms: make(map[ID][]uint64, 1),
	}
	for id := ID(0); id < IDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, HistBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency.buckets[i])
		}
		s.Histograms[VerifyLatency] = buckets
	}
	return s
}

// BucketIndex maps a duration to its bucket: ≤5ms, ≤10ms, ≤25ms, ≤50ms,
// ≤100ms, ≤250ms, ≤500ms, +Inf.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
