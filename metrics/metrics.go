// Package metrics holds the Prometheus collectors exported by the buffer pool and lock manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "godb"

// Metrics groups the engine's counters. A nil *Metrics is valid and records nothing, so components
// can be built without a registry in tests.
type Metrics struct {
	PageHits      prometheus.Counter
	PageMisses    prometheus.Counter
	Evictions     prometheus.Counter
	PagesFlushed  prometheus.Counter
	Rollbacks     prometheus.Counter
	LockWaits     prometheus.Counter
	Deadlocks     prometheus.Counter
	Transactions  *prometheus.CounterVec
	ResidentPages prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PageHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer_pool", Name: "page_hits_total",
			Help: "Page requests served from the cache.",
		}),
		PageMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer_pool", Name: "page_misses_total",
			Help: "Page requests that had to read from disk.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer_pool", Name: "evictions_total",
			Help: "Clean pages evicted to make room.",
		}),
		PagesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer_pool", Name: "pages_flushed_total",
			Help: "Dirty pages written back to their heap file.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer_pool", Name: "pages_rolled_back_total",
			Help: "Dirty pages discarded and reloaded on abort.",
		}),
		LockWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock_manager", Name: "waits_total",
			Help: "Lock requests that had to block.",
		}),
		Deadlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock_manager", Name: "deadlocks_total",
			Help: "Lock requests rejected because they would close a wait-for cycle.",
		}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transactions", Name: "completed_total",
			Help: "Completed transactions by outcome.",
		}, []string{"outcome"}),
		ResidentPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "buffer_pool", Name: "resident_pages",
			Help: "Pages currently held in the buffer pool.",
		}),
	}
	reg.MustRegister(m.PageHits, m.PageMisses, m.Evictions, m.PagesFlushed, m.Rollbacks,
		m.LockWaits, m.Deadlocks, m.Transactions, m.ResidentPages)
	return m
}

func (m *Metrics) PageHit() {
	if m != nil {
		m.PageHits.Inc()
	}
}

func (m *Metrics) PageMiss() {
	if m != nil {
		m.PageMisses.Inc()
	}
}

func (m *Metrics) Evicted() {
	if m != nil {
		m.Evictions.Inc()
	}
}

func (m *Metrics) Flushed() {
	if m != nil {
		m.PagesFlushed.Inc()
	}
}

func (m *Metrics) RolledBack() {
	if m != nil {
		m.Rollbacks.Inc()
	}
}

func (m *Metrics) LockWaited() {
	if m != nil {
		m.LockWaits.Inc()
	}
}

func (m *Metrics) Deadlocked() {
	if m != nil {
		m.Deadlocks.Inc()
	}
}

// TransactionDone records a commit or an abort.
func (m *Metrics) TransactionDone(commit bool) {
	if m == nil {
		return
	}
	if commit {
		m.Transactions.WithLabelValues("commit").Inc()
	} else {
		m.Transactions.WithLabelValues("abort").Inc()
	}
}

func (m *Metrics) SetResident(n int) {
	if m != nil {
		m.ResidentPages.Set(float64(n))
	}
}
