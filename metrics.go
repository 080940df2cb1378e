package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshConflict
	MetricLogout
	MetricLogoutAll
	MetricSessionCreated
	MetricSessionEvicted
	MetricSessionPruned
	MetricRateLimitHit

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:     "login_success",
	MetricLoginFailure:     "login_failure",
	MetricLoginRateLimited: "login_rate_limited",
	MetricRefreshSuccess:   "refresh_success",
	MetricRefreshFailure:   "refresh_failure",
	MetricRefreshConflict:  "refresh_conflict",
	MetricLogout:           "logout",
	MetricLogoutAll:        "logout_all_devices",
	MetricSessionCreated:   "session_created",
	MetricSessionEvicted:   "session_evicted",
	MetricSessionPruned:    "session_pruned",
	MetricRateLimitHit:     "rate_limit_hit",
}

// Name returns the stable export name for a metric id.
func (id MetricID) Name() string {
	if int(id) < len(metricNames) {
		return metricNames[id]
	}
	return "unknown"
}

// Metrics holds the engine's atomic counters. All methods are safe for
// concurrent use; a nil *Metrics is a no-op.
type Metrics struct {
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of all counters keyed by export name.
type Snapshot map[string]uint64

// Snapshot returns a deep copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := make(Snapshot, metricIDCount)
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap[id.Name()] = m.counters[id].Load()
	}
	return snap
}

// MetricIDs returns every defined metric id, for exporters.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricIDCount)
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
