package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the checking pipeline and
// search sessions. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheErrors     *prometheus.CounterVec
	Lookups         *prometheus.CounterVec
	LookupRetries   prometheus.Counter
	LookupsInFlight prometheus.Gauge
	SearchEvents    *prometheus.CounterVec
	SearchRounds    prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "domhaul",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Domains answered from the taken-cache.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "domhaul",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Domains not found (or expired) in the taken-cache.",
		}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domhaul",
			Subsystem: "cache",
			Name:      "store_errors_total",
			Help:      "Cache store faults absorbed by the cache, by operation.",
		}, []string{"op"}), // op: get, put
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domhaul",
			Subsystem: "checker",
			Name:      "lookups_total",
			Help:      "Finished domain checks by outcome.",
		}, []string{"outcome"}), // outcome: available, taken, unknown
		LookupRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "domhaul",
			Subsystem: "checker",
			Name:      "lookup_retries_total",
			Help:      "Lookup attempts that failed and were retried.",
		}),
		LookupsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "domhaul",
			Subsystem: "checker",
			Name:      "lookups_in_flight",
			Help:      "Lookups currently holding an admission slot.",
		}),
		SearchEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domhaul",
			Subsystem: "search",
			Name:      "events_total",
			Help:      "Events emitted by search sessions, by type.",
		}, []string{"type"}),
		SearchRounds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "domhaul",
			Subsystem: "search",
			Name:      "rounds",
			Help:      "Rounds run per search session.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}),
	}
}

func (m *Metrics) CacheHit(n int) {
	if m == nil {
		return
	}
	m.CacheHits.Add(float64(n))
}

func (m *Metrics) CacheMiss(n int) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(float64(n))
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Lookup(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.LookupRetries.Inc()
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta int) {
	if m == nil {
		return
	}
	m.LookupsInFlight.Add(float64(delta))
}

func (m *Metrics) Event(typ string) {
	if m == nil {
		return
	}
	m.SearchEvents.WithLabelValues(typ).Inc()
}

func (m *Metrics) Rounds(n int) {
	if m == nil {
		return
	}
	m.SearchRounds.Observe(float64(n))
}
