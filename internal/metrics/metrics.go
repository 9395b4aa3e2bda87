// Package metrics holds the Prometheus collectors for refresh and shared
// state activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "weathersync"

// Reload results.
const (
	ReloadSent      = "sent"
	ReloadThrottled = "throttled"
	ReloadForced    = "forced"
	ReloadFailed    = "failed"
)

type Metrics struct {
	Registry *prometheus.Registry

	refreshes     *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	reloads       *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	jobDuration   prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "City refreshes by trigger path and outcome.",
		}, []string{"path", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temperature_fetches_total",
			Help:      "Temperature fetch requests, split into started and joined.",
		}, []string{"mode"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_reloads_total",
			Help:      "Display surface reload requests by result.",
		}, []string{"result"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_store_failures_total",
			Help:      "Dropped shared store reads and writes by operation.",
		}, []string{"op"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_jobs_total",
			Help:      "Background refresh jobs by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "background_job_duration_seconds",
			Help:      "Wall-clock time of background refresh jobs.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.refreshes,
		m.fetches,
		m.reloads,
		m.storeFailures,
		m.jobs,
		m.jobDuration,
	)
	return m
}

func (m *Metrics) Refresh(path, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(path, outcome).Inc()
}

// Fetch records whether a temperature request started a fetch or joined one.
func (m *Metrics) Fetch(joined bool) {
	if m == nil {
		return
	}
	mode := "started"
	if joined {
		mode = "joined"
	}
	m.fetches.WithLabelValues(mode).Inc()
}

func (m *Metrics) Reload(result string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) Job(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(seconds)
}
