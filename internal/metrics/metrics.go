package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics holds process-wide counters that are always collected, whether
// or not the Prometheus registry was initialized. The CLI stress command
// and the JSON stats endpoint report from them.
type Metrics struct {
	Statements      atomic.Int64
	StatementErrors atomic.Int64
	CacheHits       atomic.Int64
	CacheSharedHits atomic.Int64
	CacheMisses     atomic.Int64
	PoolAcquired    atomic.Int64
	PoolTimeouts    atomic.Int64
	PoolWaitNs      atomic.Int64
	MaxPoolWaitNs   atomic.Int64

	startTime time.Time
}

var global = &Metrics{startTime: time.Now()}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized
func StartTime() time.Time {
	return global.startTime
}

func (m *Metrics) recordStatement(success bool) {
	m.Statements.Add(1)
	if !success {
		m.StatementErrors.Add(1)
	}
}

func (m *Metrics) recordCache(result string) {
	switch result {
	case "hit":
		m.CacheHits.Add(1)
	case "shared":
		m.CacheSharedHits.Add(1)
	default:
		m.CacheMisses.Add(1)
	}
}

func (m *Metrics) recordAcquire(result string, wait time.Duration) {
	switch result {
	case "ok":
		m.PoolAcquired.Add(1)
	case "timeout":
		m.PoolTimeouts.Add(1)
	}
	m.PoolWaitNs.Add(int64(wait))
	updateMax(&m.MaxPoolWaitNs, int64(wait))
}

// Snapshot returns a point-in-time snapshot of all counters
func (m *Metrics) Snapshot() map[string]interface{} {
	lookups := m.CacheHits.Load() + m.CacheSharedHits.Load() + m.CacheMisses.Load()
	acquired := m.PoolAcquired.Load()
	avgWait := float64(0)
	if acquired > 0 {
		avgWait = float64(m.PoolWaitNs.Load()) / float64(acquired) / float64(time.Millisecond)
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"statements": map[string]interface{}{
			"total":  m.Statements.Load(),
			"failed": m.StatementErrors.Load(),
		},
		"cache": map[string]interface{}{
			"lookups": lookups,
			"hits":    m.CacheHits.Load(),
			"shared":  m.CacheSharedHits.Load(),
			"misses":  m.CacheMisses.Load(),
			"hit_pct": percentage(m.CacheHits.Load()+m.CacheSharedHits.Load(), lookups),
		},
		"pool": map[string]interface{}{
			"acquired":    acquired,
			"timeouts":    m.PoolTimeouts.Load(),
			"avg_wait_ms": avgWait,
			"max_wait_ms": float64(m.MaxPoolWaitNs.Load()) / float64(time.Millisecond),
		},
	}
}

// JSONHandler returns an HTTP handler that exposes the snapshot as JSON
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
