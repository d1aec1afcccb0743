package authsec

import "sync/atomic"

// MetricID defines a public type used by authsec APIs.
type MetricID uint16

const (
	// MetricTokensIssued is an exported constant or variable used by the security core.
	MetricTokensIssued MetricID = iota
	// MetricAccessVerifyFailure is an exported constant or variable used by the security core.
	MetricAccessVerifyFailure
	// MetricRefreshRotated is an exported constant or variable used by the security core.
	MetricRefreshRotated
	// MetricRefreshReuseDetected is an exported constant or variable used by the security core.
	MetricRefreshReuseDetected
	// MetricSessionRevoked is an exported constant or variable used by the security core.
	MetricSessionRevoked
	// MetricSessionsBulkRevoked is an exported constant or variable used by the security core.
	MetricSessionsBulkRevoked
	// MetricRateLimitAllowed is an exported constant or variable used by the security core.
	MetricRateLimitAllowed
	// MetricRateLimitBlocked is an exported constant or variable used by the security core.
	MetricRateLimitBlocked
	// MetricRateLimitFailOpen is an exported constant or variable used by the security core.
	MetricRateLimitFailOpen
	// MetricTwoFactorEnabled is an exported constant or variable used by the security core.
	MetricTwoFactorEnabled
	// MetricTwoFactorDisabled is an exported constant or variable used by the security core.
	MetricTwoFactorDisabled
	// MetricTwoFactorCodeIssued is an exported constant or variable used by the security core.
	MetricTwoFactorCodeIssued
	// MetricTwoFactorSuccess is an exported constant or variable used by the security core.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure is an exported constant or variable used by the security core.
	MetricTwoFactorFailure
	// MetricTwoFactorLockout is an exported constant or variable used by the security core.
	MetricTwoFactorLockout
	// MetricBackupCodeUsed is an exported constant or variable used by the security core.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed is an exported constant or variable used by the security core.
	MetricBackupCodeFailed

	metricIDCount
)

type paddedCounter struct {
	value uint64
	_     [7]uint64 // avoid false sharing between adjacent counters
}

// Metrics holds atomic counters for security-core events. All operations are
// no-ops when disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter into a fresh map.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
