package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted     *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	runErrors         *prometheus.CounterVec
	roundsCommitted   *prometheus.CounterVec
	activeNodes       *prometheus.HistogramVec
	roundDuration     *prometheus.HistogramVec
	runDuration       *prometheus.HistogramVec
	runRounds         *prometheus.HistogramVec
	activeRuns        prometheus.Gauge
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a collector registered with the default Prometheus registry
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with reg
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cutdeck_runs_submitted_total",
				Help: "Total number of graph runs submitted",
			},
			[]string{"graph"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cutdeck_runs_completed_total",
				Help: "Total number of graph runs finished, by final status",
			},
			[]string{"graph", "status"},
		),
		runErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cutdeck_run_errors_total",
				Help: "Total number of failed runs, by error kind",
			},
			[]string{"graph", "kind"},
		),
		roundsCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cutdeck_supersteps_total",
				Help: "Total number of committed supersteps",
			},
			[]string{"graph"},
		),
		activeNodes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cutdeck_superstep_active_nodes",
				Help:    "Number of active nodes per committed superstep",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"graph"},
		),
		roundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cutdeck_superstep_duration_seconds",
				Help:    "Superstep duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"graph"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cutdeck_run_duration_seconds",
				Help:    "Graph run duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"graph"},
		),
		runRounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cutdeck_run_supersteps",
				Help:    "Committed supersteps per run",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
			[]string{"graph"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cutdeck_active_runs",
				Help: "Number of currently executing runs",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cutdeck_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cutdeck_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cutdeck_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(graph string) {
	c.runsSubmitted.WithLabelValues(graph).Inc()
}

// RecordRunCompleted records a finished run
func (c *Collector) RecordRunCompleted(graph string, status string, rounds int, duration time.Duration) {
	c.runsCompleted.WithLabelValues(graph, status).Inc()
	c.runRounds.WithLabelValues(graph).Observe(float64(rounds))
	c.runDuration.WithLabelValues(graph).Observe(duration.Seconds())
}

// RecordRound records a committed superstep
func (c *Collector) RecordRound(graph string, activeNodes int, duration time.Duration) {
	c.roundsCommitted.WithLabelValues(graph).Inc()
	c.activeNodes.WithLabelValues(graph).Observe(float64(activeNodes))
	c.roundDuration.WithLabelValues(graph).Observe(duration.Seconds())
}

// RecordRunError records the error kind of a failed run
func (c *Collector) RecordRunError(graph string, kind string) {
	c.runErrors.WithLabelValues(graph, kind).Inc()
}

// SetActiveRuns sets the number of currently executing runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
