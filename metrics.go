package goToken

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by goToken APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricIssueSuccess is an exported constant or variable used by the token lifecycle service.
	MetricIssueSuccess MetricID = iota
	// MetricIssueFailure is an exported constant or variable used by the token lifecycle service.
	MetricIssueFailure
	// MetricRefreshSuccess is an exported constant or variable used by the token lifecycle service.
	MetricRefreshSuccess
	// MetricRefreshFailure is an exported constant or variable used by the token lifecycle service.
	MetricRefreshFailure
	// MetricRefreshRateLimited is an exported constant or variable used by the token lifecycle service.
	MetricRefreshRateLimited
	// MetricReuseDetected is an exported constant or variable used by the token lifecycle service.
	MetricReuseDetected
	// MetricChainTokensRevoked is an exported constant or variable used by the token lifecycle service.
	MetricChainTokensRevoked
	// MetricValidateSuccess is an exported constant or variable used by the token lifecycle service.
	MetricValidateSuccess
	// MetricValidateFailure is an exported constant or variable used by the token lifecycle service.
	MetricValidateFailure
	// MetricValidateRevoked is an exported constant or variable used by the token lifecycle service.
	MetricValidateRevoked
	// MetricRevoke is an exported constant or variable used by the token lifecycle service.
	MetricRevoke
	// MetricRevokeAll is an exported constant or variable used by the token lifecycle service.
	MetricRevokeAll
	// MetricTokensRevoked is an exported constant or variable used by the token lifecycle service.
	MetricTokensRevoked
	// MetricSweepRecordsRemoved is an exported constant or variable used by the token lifecycle service.
	MetricSweepRecordsRemoved
	// MetricSweepEntriesRemoved is an exported constant or variable used by the token lifecycle service.
	MetricSweepEntriesRemoved
	// MetricLedgerEvictions is an exported constant or variable used by the token lifecycle service.
	MetricLedgerEvictions
	// MetricValidateLatency is an exported constant or variable used by the token lifecycle service.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds cache-line-padded atomic counters and an optional
// validate-latency histogram. When disabled, every method is a no-op.
//
//	Docs: docs/metrics.md
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
//
//	Docs: docs/metrics.md
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded at all.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validate-latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments one counter by one.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increments one counter by n. Used for batch outcomes such as
// chain-wide revocations.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records one latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
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
