package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the path computation metrics.
type Registry struct {
	ComputationsTotal   *prometheus.CounterVec
	ComputationDuration *prometheus.HistogramVec
	MetricRetriesTotal  *prometheus.CounterVec
	SoftRelaxTotal      prometheus.Counter
	FeasibilityTotal    *prometheus.CounterVec
	ConflictRetries     prometheus.Counter
	TopologyRefreshes   *prometheus.CounterVec
	TopologyNodes       prometheus.Gauge
	TopologyLinks       prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	r := &Registry{registry: reg}
	factory := promauto.With(reg)

	r.ComputationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pce_path_computations_total",
			Help: "Total number of path computations by response code and cause",
		},
		[]string{"result", "cause"},
	)
	r.ComputationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pce_path_computation_duration_seconds",
			Help:    "Duration of path computations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"result"},
	)
	r.MetricRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pce_metric_retries_total",
			Help: "Solver reruns with PropagationDelay after a latency failure",
		},
		[]string{"result"}, // ok, failed
	)
	r.SoftRelaxTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pce_soft_constraint_relaxations_total",
			Help: "Computations rerun with hard constraints only",
		},
	)
	r.FeasibilityTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pce_feasibility_checks_total",
			Help: "Feasibility service answers",
		},
		[]string{"outcome"}, // feasible, infeasible, unreachable
	)
	r.ConflictRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pce_provisioning_conflict_retries_total",
			Help: "Computations rerun after a provisioning conflict",
		},
	)
	r.TopologyRefreshes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pce_topology_refreshes_total",
			Help: "Topology snapshot refreshes",
		},
		[]string{"status"},
	)
	r.TopologyNodes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pce_topology_nodes",
			Help: "Nodes in the current topology snapshot",
		},
	)
	r.TopologyLinks = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pce_topology_links",
			Help: "Links in the current topology snapshot",
		},
	)
	return r
}

// RecordComputation records one finished request.
func (r *Registry) RecordComputation(result, cause string, duration time.Duration) {
	if r == nil {
		return
	}
	r.ComputationsTotal.WithLabelValues(result, cause).Inc()
	r.ComputationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (r *Registry) RecordMetricRetry(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.MetricRetriesTotal.WithLabelValues("ok").Inc()
	} else {
		r.MetricRetriesTotal.WithLabelValues("failed").Inc()
	}
}

func (r *Registry) RecordSoftRelax() {
	if r == nil {
		return
	}
	r.SoftRelaxTotal.Inc()
}

func (r *Registry) RecordFeasibility(outcome string) {
	if r == nil {
		return
	}
	r.FeasibilityTotal.WithLabelValues(outcome).Inc()
}

func (r *Registry) RecordConflictRetry() {
	if r == nil {
		return
	}
	r.ConflictRetries.Inc()
}

// RecordTopology records a refresh attempt and, when it succeeded, the size
// of the new snapshot.
func (r *Registry) RecordTopology(err error, nodes, links int) {
	if r == nil {
		return
	}
	if err != nil {
		r.TopologyRefreshes.WithLabelValues("error").Inc()
		return
	}
	r.TopologyRefreshes.WithLabelValues("ok").Inc()
	r.TopologyNodes.Set(float64(nodes))
	r.TopologyLinks.Set(float64(links))
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
