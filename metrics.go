package emberauth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricChallengeIssued counts OTP, magic-link, and deletion-protection
	// challenges created and mailed.
	MetricChallengeIssued MetricID = iota
	// MetricChallengeDeliveryFailed counts primary challenge emails that
	// could not be delivered.
	MetricChallengeDeliveryFailed
	// MetricChallengeConfirmed counts successful challenge confirmations.
	MetricChallengeConfirmed
	// MetricChallengeRejected counts confirmations with a wrong, expired,
	// or never-issued secret.
	MetricChallengeRejected
	// MetricTokenIssued counts identity tokens minted.
	MetricTokenIssued
	// MetricTokenVerified counts successful verify calls.
	MetricTokenVerified
	// MetricTokenRejected counts failed verify calls.
	MetricTokenRejected
	// MetricRefreshMinted counts refresh tokens minted.
	MetricRefreshMinted
	// MetricRefreshSuccess counts identity tokens issued through refresh.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricRevoke counts single refresh-token revocations.
	MetricRevoke
	// MetricRevokeAll counts logout-everywhere revocations.
	MetricRevokeAll
	// MetricQuotaExhausted counts challenges refused for spent quota.
	MetricQuotaExhausted
	// MetricLowQuotaNotified counts low-quota owner notifications sent.
	MetricLowQuotaNotified
	// MetricNotifyFailed counts best-effort owner notifications that were
	// dropped after a delivery error.
	MetricNotifyFailed

	metricCount
)

// Metrics is a fixed-size set of atomic counters. All methods are safe for
// concurrent use; a nil *Metrics is a no-op.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies every counter. The result is detached from the live set.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
