package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache activity.
type Metrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Fetches       prometheus.Counter
	Errors        prometheus.Counter
	Invalidations prometheus.Counter
	Dropped       prometheus.Counter
}

// NewMetrics registers the cache counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "marketctl",
			Subsystem: "query_cache",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		Hits:          counter("hits_total", "Reads served from a fresh entry."),
		Misses:        counter("misses_total", "Reads that required a fetch."),
		Fetches:       counter("fetches_total", "Loader invocations, retries included."),
		Errors:        counter("errors_total", "Fetches that settled with an error."),
		Invalidations: counter("invalidations_total", "Entries marked stale."),
		Dropped:       counter("dropped_results_total", "Results discarded because the cache was cleared."),
	}
}

type event int

const (
	hit event = iota
	miss
	fetch
	fetchError
	invalidation
	dropped
)

func (m *Metrics) inc(e event) {
	if m == nil {
		return
	}
	switch e {
	case hit:
		m.Hits.Inc()
	case miss:
		m.Misses.Inc()
	case fetch:
		m.Fetches.Inc()
	case fetchError:
		m.Errors.Inc()
	case invalidation:
		m.Invalidations.Inc()
	case dropped:
		m.Dropped.Inc()
	}
}
