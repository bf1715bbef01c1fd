package metrics_collectors

import (
	"context"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/mem"
)

// VirtualMemoryFunc reads the host memory totals.
type VirtualMemoryFunc func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// MemoryMetricCollector collects the percentage of memory not available to new processes.
type MemoryMetricCollector struct {
	Logger zerolog.Logger

	// MemoryFunc overrides the memory source; nil reads the host totals.
	MemoryFunc VirtualMemoryFunc
}

// Name returns the identifier for the memory metric collector.
func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

// Collect returns (total - available) / total as a percentage.
func (m *MemoryMetricCollector) Collect(ctx context.Context) float64 {
	m.Logger.Debug().Msg("Collecting memory usage metrics")

	read := m.MemoryFunc
	if read == nil {
		read = mem.VirtualMemoryWithContext
	}

	memStats, err := read(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
		return constants.TelemetryUnavailable
	}
	if memStats == nil || memStats.Total == 0 {
		m.Logger.Warn().Msg("Memory total is zero")
		return constants.TelemetryUnavailable
	}

	used := memStats.Total - min(memStats.Available, memStats.Total)
	usage := roundPercent(float64(used) / float64(memStats.Total) * 100)

	m.Logger.Debug().
		Float64("memory_usage_percent", usage).
		Msg("Memory usage collected successfully")

	return usage
}

// Unit specifies the unit for memory usage metrics.
func (m *MemoryMetricCollector) Unit() string {
	return "percentage"
}

// Description provides details of the memory usage metrics collected.
func (m *MemoryMetricCollector) Description() string {
	return "Percentage of memory in use, based on MemTotal and MemAvailable."
}
