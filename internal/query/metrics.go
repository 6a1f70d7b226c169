package query

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const labelUnit = "unit"

// cacheMetrics counts read-unit cache traffic. A nil receiver is a no-op so
// the service works without a registry (tests, ad hoc wiring).
type cacheMetrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	invalidations prometheus.Counter
}

func newCacheMetrics(reg *prometheus.Registry) *cacheMetrics {
	if reg == nil {
		return nil
	}

	m := &cacheMetrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Read-unit results served from cache",
			},
			[]string{labelUnit},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Read-unit executions against the store",
			},
			[]string{labelUnit},
		),
		invalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_invalidations_total",
				Help: "Write-triggered cache invalidations",
			},
		),
	}

	reg.MustRegister(m.hits, m.misses, m.invalidations)
	return m
}

func (m *cacheMetrics) hit(key string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(unitOf(key)).Inc()
}

func (m *cacheMetrics) miss(key string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(unitOf(key)).Inc()
}

func (m *cacheMetrics) invalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

func unitOf(key string) string {
	if strings.HasPrefix(key, productsKeyPrefix) {
		return "products"
	}
	return key
}
