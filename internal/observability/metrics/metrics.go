package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "device_agent_"

	ResultSuccess = "success"
	ResultError   = "error"

	PublishKindResponse  = "response"
	PublishKindTelemetry = "telemetry"

	OutcomeExecuted    = "executed"
	OutcomeNoScript    = "no_script"
	OutcomeStartFailed = "start_failed"
	OutcomeTimedOut    = "timed_out"
)

var (
	registerOnce sync.Once

	commandsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "commands_received_total",
			Help: "Command messages received by intake result",
		},
		[]string{"result"},
	)
	commandsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "commands_processed_total",
			Help: "Commands processed by outcome",
		},
		[]string{"outcome"},
	)
	commandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "command_duration_seconds",
			Help:    "Time from dequeue to published response",
			Buckets: prometheus.DefBuckets,
		},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "publish_total",
			Help: "Publish attempts by payload kind and result",
		},
		[]string{"kind", "result"},
	)
	cpuPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "cpu_percent",
			Help: "Last sampled CPU utilisation, -1 when unavailable",
		},
	)
	memoryPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "memory_percent",
			Help: "Last sampled memory utilisation, -1 when unavailable",
		},
	)
)

// Register adds the agent collectors to reg once. A nil reg uses the
// default Prometheus registerer.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			commandsReceived,
			commandsProcessed,
			commandDuration,
			publishes,
			cpuPercent,
			memoryPercent,
		)
	})
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCommandReceived counts one intake decision.
func ObserveCommandReceived(result string) {
	commandsReceived.WithLabelValues(result).Inc()
}

// ObserveCommandProcessed counts one finished command cycle.
func ObserveCommandProcessed(outcome string, elapsed time.Duration) {
	commandsProcessed.WithLabelValues(outcome).Inc()
	commandDuration.Observe(elapsed.Seconds())
}

// ObservePublish counts one publish attempt.
func ObservePublish(kind string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	publishes.WithLabelValues(kind, result).Inc()
}

// SetTelemetry records the last sampled percentages.
func SetTelemetry(cpu, memory float64) {
	cpuPercent.Set(cpu)
	memoryPercent.Set(memory)
}
