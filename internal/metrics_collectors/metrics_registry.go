package metrics_collectors

import "sync"

// MetricsRegistry holds the collectors sampled on every telemetry round,
// in registration order.
type MetricsRegistry struct {
	mu         sync.RWMutex
	order      []string
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// Register adds a collector. A collector with the same name is replaced
// in place.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := collector.Name()
	if _, exists := r.collectors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.collectors[name] = collector
}

// GetCollectors returns the registered collectors in registration order.
func (r *MetricsRegistry) GetCollectors() []MetricCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MetricCollector, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.collectors[name])
	}
	return out
}
