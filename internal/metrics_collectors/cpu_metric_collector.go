package metrics_collectors

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/benmeehan/device-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
)

// CPUTimesFunc reads the aggregate CPU time counters.
type CPUTimesFunc func(ctx context.Context) (cpu.TimesStat, error)

// CPUMetricCollector computes CPU utilisation from the change in tick
// counters between two consecutive calls to Collect.
type CPUMetricCollector struct {
	Logger zerolog.Logger

	// TimesFunc overrides the counter source; nil reads the host counters.
	TimesFunc CPUTimesFunc

	mu   sync.Mutex
	prev *models.CPUSample
}

func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

// Collect returns busy time as a percentage of total time since the previous
// call. The first call has nothing to compare against and returns
// constants.TelemetryUnavailable, as does a failed counter read.
func (c *CPUMetricCollector) Collect(ctx context.Context) float64 {
	times, err := c.readTimes(ctx)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to read CPU counters")
		return constants.TelemetryUnavailable
	}

	sample := models.CPUSample{
		Idle:  times.Idle,
		Total: times.User + times.Nice + times.System + times.Idle + times.Iowait + times.Irq + times.Softirq,
	}

	c.mu.Lock()
	prev := c.prev
	c.prev = &sample
	c.mu.Unlock()

	if prev == nil {
		c.Logger.Debug().Msg("First CPU sample, no usage delta yet")
		return constants.TelemetryUnavailable
	}

	deltaTotal := sample.Total - prev.Total
	deltaIdle := sample.Idle - prev.Idle
	if deltaTotal <= 0 {
		return 0
	}

	usage := roundPercent((deltaTotal - deltaIdle) / deltaTotal * 100)
	c.Logger.Debug().Float64("cpu_percent", usage).Msg("CPU usage collected successfully")
	return usage
}

func (c *CPUMetricCollector) readTimes(ctx context.Context) (cpu.TimesStat, error) {
	if c.TimesFunc != nil {
		return c.TimesFunc(ctx)
	}
	stats, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(stats) == 0 {
		return cpu.TimesStat{}, errors.New("no aggregate CPU counters reported")
	}
	return stats[0], nil
}

func (c *CPUMetricCollector) Unit() string {
	return "percentage"
}

func (c *CPUMetricCollector) Description() string {
	return "Percentage of CPU time spent busy since the previous sample."
}
