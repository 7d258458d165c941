// Package metrics exposes the scorer's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally and tests can pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "score"

// Cache outcomes reported for the result cache.
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeBypass = "bypass"
)

// Metrics bundles every collector the service reports.
type Metrics struct {
	requests         *prometheus.CounterVec
	vpCache          *prometheus.CounterVec
	reconcilerCache  *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	cacheWriteErrors prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and result code.",
		}, []string{"method", "code"}),
		vpCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vp_cache_total",
			Help:      "Voting power result cache lookups by outcome.",
		}, []string{"outcome"}),
		reconcilerCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_reconciler_cache_total",
			Help:      "Cross-chain snapshot cache lookups by outcome.",
		}, []string{"outcome"}),
		pipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vp_pipeline_duration_seconds",
			Help:      "Time spent computing voting power on a cache miss.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		cacheWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vp_cache_write_errors_total",
			Help:      "Result cache writes that failed and were dropped.",
		}),
	}
}

// Request counts one JSON-RPC call.
func (m *Metrics) Request(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, codeLabel(code)).Inc()
}

// VPCache counts one result cache lookup.
func (m *Metrics) VPCache(outcome string) {
	if m == nil {
		return
	}
	m.vpCache.WithLabelValues(outcome).Inc()
}

// ReconcilerCache counts one snapshot cache lookup.
func (m *Metrics) ReconcilerCache(hit bool) {
	if m == nil {
		return
	}
	outcome := OutcomeMiss
	if hit {
		outcome = OutcomeHit
	}
	m.reconcilerCache.WithLabelValues(outcome).Inc()
}

// Pipeline records the duration of one computed result.
func (m *Metrics) Pipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

// CacheWriteError counts a dropped cache write.
func (m *Metrics) CacheWriteError() {
	if m == nil {
		return
	}
	m.cacheWriteErrors.Inc()
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
