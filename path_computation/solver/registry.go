package solver

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"pce/constraints"
	"pce/path_computation/model"
)

// Weigher returns the cost of traversing a link under one metric.
type Weigher func(link *model.Link) uint64

// WeigherRegistry manages the metrics the solver knows how to compute.
type WeigherRegistry struct {
	weighers map[constraints.Metric]Weigher
	mu       sync.RWMutex
}

var globalRegistry = &WeigherRegistry{
	weighers: make(map[constraints.Metric]Weigher),
}

func init() {
	if err := RegisterGlobal(constraints.MetricHopCount, hopCount); err != nil {
		log.Warnf("Failed to register %s weigher: %v", constraints.MetricHopCount, err)
	}
	if err := RegisterGlobal(constraints.MetricPropagationDelay, propagationDelay); err != nil {
		log.Warnf("Failed to register %s weigher: %v", constraints.MetricPropagationDelay, err)
	}
}

func hopCount(*model.Link) uint64 { return 1 }

func propagationDelay(l *model.Link) uint64 { return uint64(l.Latency) }

// Register registers a weigher for the given metric.
func (r *WeigherRegistry) Register(metric constraints.Metric, w Weigher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.weighers[metric]; exists {
		return fmt.Errorf("metric '%s' is already registered", metric)
	}
	r.weighers[metric] = w
	return nil
}

func (r *WeigherRegistry) Get(metric constraints.Metric) (Weigher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.weighers[metric]
	if !exists {
		return nil, fmt.Errorf("metric '%s' not found in registry", metric)
	}
	return w, nil
}

// List returns the registered metric names in order.
func (r *WeigherRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.weighers))
	for name := range r.weighers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func RegisterGlobal(metric constraints.Metric, w Weigher) error {
	return globalRegistry.Register(metric, w)
}

func GetGlobal(metric constraints.Metric) (Weigher, error) {
	return globalRegistry.Get(metric)
}

func ListGlobal() []string {
	return globalRegistry.List()
}

// weigherFor resolves the weigher for metric, falling back to HopCount for
// metrics without an implementation. It returns the metric actually used.
func weigherFor(metric constraints.Metric) (Weigher, constraints.Metric) {
	if metric == "" {
		metric = constraints.MetricHopCount
	}
	w, err := GetGlobal(metric)
	if err == nil {
		return w, metric
	}
	log.Warnf("weigherFor: %v, will fallback to %s", err, constraints.MetricHopCount)
	return hopCount, constraints.MetricHopCount
}
