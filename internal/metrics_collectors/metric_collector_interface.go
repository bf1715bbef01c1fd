package metrics_collectors

import (
	"context"
	"math"
)

// MetricCollector defines the interface for collecting a single percentage metric.
type MetricCollector interface {
	Name() string                        // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) float64 // Current value, or constants.TelemetryUnavailable
	Unit() string                        // Unit of the metric (e.g., "percentage")
	Description() string                 // Description of the metric
}

// roundPercent clamps v to [0, 100] and keeps two decimals.
func roundPercent(v float64) float64 {
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*100) / 100
}
