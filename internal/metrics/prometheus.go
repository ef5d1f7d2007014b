package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for fmidb
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	cacheLookupsTotal  *prometheus.CounterVec
	statementsTotal    *prometheus.CounterVec
	poolAcquireTotal   *prometheus.CounterVec
	unknownColumnTotal *prometheus.CounterVec

	// Histograms
	statementDuration *prometheus.HistogramVec
	poolWait          *prometheus.HistogramVec

	// Gauges
	uptime    prometheus.GaugeFunc
	poolSlots *prometheus.GaugeVec
}

// Default histogram buckets for statement duration (in seconds)
var defaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	start := time.Now()
	pm := &PrometheusMetrics{
		registry: registry,

		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Repository cache lookups by result (hit, shared, miss)",
			},
			[]string{"repository", "op", "result"},
		),

		statementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statements_total",
				Help:      "SQL statements sent to a backend",
			},
			[]string{"backend", "kind", "status"},
		),

		poolAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_acquire_total",
				Help:      "Connection pool acquisitions by result",
			},
			[]string{"pool", "result"},
		),

		unknownColumnTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "codec_unknown_columns_total",
				Help:      "Result columns with a type the row codec does not support",
			},
			[]string{"backend", "type"},
		),

		statementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "statement_duration_seconds",
				Help:      "Statement round trip time",
				Buckets:   buckets,
			},
			[]string{"backend", "kind"},
		),

		poolWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pool_wait_seconds",
				Help:      "Time spent waiting for a free pool slot",
				Buckets:   buckets,
			},
			[]string{"pool"},
		),

		poolSlots: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_slots",
				Help:      "Pool slots by state",
			},
			[]string{"pool", "state"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	registry.MustRegister(
		pm.cacheLookupsTotal,
		pm.statementsTotal,
		pm.poolAcquireTotal,
		pm.unknownColumnTotal,
		pm.statementDuration,
		pm.poolWait,
		pm.poolSlots,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordCacheLookup counts one repository lookup.
func RecordCacheLookup(repository, op, result string) {
	global.recordCache(result)
	if promMetrics == nil {
		return
	}
	promMetrics.cacheLookupsTotal.WithLabelValues(repository, op, result).Inc()
}

// RecordStatement records one statement round trip.
func RecordStatement(backend, kind string, d time.Duration, success bool) {
	global.recordStatement(success)
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	promMetrics.statementsTotal.WithLabelValues(backend, kind, status).Inc()
	promMetrics.statementDuration.WithLabelValues(backend, kind).Observe(d.Seconds())
}

// RecordUnknownColumn counts a column the codec could not render.
func RecordUnknownColumn(backend, dbType string) {
	if promMetrics == nil {
		return
	}
	promMetrics.unknownColumnTotal.WithLabelValues(backend, dbType).Inc()
}

// RecordPoolAcquire records a pool Get outcome and how long it waited.
func RecordPoolAcquire(pool, result string, wait time.Duration) {
	global.recordAcquire(result, wait)
	if promMetrics == nil {
		return
	}
	promMetrics.poolAcquireTotal.WithLabelValues(pool, result).Inc()
	promMetrics.poolWait.WithLabelValues(pool).Observe(wait.Seconds())
}

// SetPoolSlots publishes pool slot counts.
func SetPoolSlots(pool string, uninitialized, idle, busy int) {
	if promMetrics == nil {
		return
	}
	promMetrics.poolSlots.WithLabelValues(pool, "uninitialized").Set(float64(uninitialized))
	promMetrics.poolSlots.WithLabelValues(pool, "idle").Set(float64(idle))
	promMetrics.poolSlots.WithLabelValues(pool, "busy").Set(float64(busy))
}

// Handler returns the /metrics handler. Before InitPrometheus it serves 503.
func Handler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not initialized", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry, or nil before InitPrometheus.
func Registry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
