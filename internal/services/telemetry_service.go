package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/benmeehan/device-agent/internal/metrics_collectors"
	"github.com/benmeehan/device-agent/internal/models"
	"github.com/benmeehan/device-agent/internal/observability/metrics"
	"github.com/benmeehan/device-agent/internal/utils"
	"github.com/benmeehan/device-agent/pkg/identity"
	"github.com/benmeehan/device-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// TelemetryServiceOptions holds the telemetry service configuration.
type TelemetryServiceOptions struct {
	Topic          string
	Interval       time.Duration
	Timeout        time.Duration // Bound on one sampling round.
	QOS            int
	PublishTimeout time.Duration

	// Collectors replaces the default CPU and memory collectors when set.
	Collectors []metrics_collectors.MetricCollector
}

// TelemetryService samples host CPU and memory usage and publishes a
// telemetry record every interval.
type TelemetryService struct {
	pubTopic       string
	interval       time.Duration
	timeout        time.Duration
	qos            int
	publishTimeout time.Duration

	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	registry   *metrics_collectors.MetricsRegistry
	workerPool *utils.WorkerPool
	now        func() time.Time

	mu      sync.Mutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTelemetryService initializes and returns a new instance of TelemetryService.
func NewTelemetryService(opts TelemetryServiceOptions, deviceInfo identity.DeviceInfoInterface, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *TelemetryService {
	if opts.Topic == "" {
		opts.Topic = constants.DefaultTelemetryTopic
	}
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultTelemetryInterval
	}
	if opts.Timeout <= 0 || opts.Timeout > opts.Interval {
		opts.Timeout = opts.Interval
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = constants.DefaultPublishTimeout
	}

	collectors := opts.Collectors
	if len(collectors) == 0 {
		collectors = []metrics_collectors.MetricCollector{
			&metrics_collectors.CPUMetricCollector{Logger: logger},
			&metrics_collectors.MemoryMetricCollector{Logger: logger},
		}
	}

	registry := metrics_collectors.NewMetricsRegistry()
	for _, c := range collectors {
		registry.Register(c)
		logger.Debug().
			Str("metric", c.Name()).
			Str("unit", c.Unit()).
			Str("description", c.Description()).
			Msg("Registered telemetry collector")
	}

	return &TelemetryService{
		pubTopic:       opts.Topic,
		interval:       opts.Interval,
		timeout:        opts.Timeout,
		qos:            opts.QOS,
		publishTimeout: opts.PublishTimeout,
		deviceInfo:     deviceInfo,
		mqttClient:     mqttClient,
		logger:         logger,
		registry:       registry,
		workerPool:     utils.NewWorkerPool(len(collectors)),
		now:            time.Now,
	}
}

// Start begins periodic sampling. The first record is published right away.
func (t *TelemetryService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return errors.New("telemetry service has been stopped")
	}
	if t.ctx != nil {
		t.logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}

	t.logger.Info().Msg("Starting TelemetryService...")
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(1)
	go t.runTelemetryLoop()

	t.logger.Info().Str("topic", t.pubTopic).Dur("interval", t.interval).Msg("TelemetryService started successfully")
	return nil
}

// Stop gracefully stops the telemetry service.
func (t *TelemetryService) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx == nil {
		t.logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}

	t.logger.Info().Msg("Stopping TelemetryService...")
	t.cancel()
	t.wg.Wait()
	t.workerPool.Shutdown()
	t.ctx, t.cancel = nil, nil
	t.stopped = true
	t.logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

func (t *TelemetryService) runTelemetryLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.sampleAndPublish(t.ctx)
	for {
		select {
		case <-ticker.C:
			t.sampleAndPublish(t.ctx)
		case <-t.ctx.Done():
			t.logger.Info().Msg("Stopping telemetry collection")
			return
		}
	}
}

func (t *TelemetryService) sampleAndPublish(ctx context.Context) {
	record := t.SampleOnce(ctx)
	if err := t.PublishTelemetry(ctx, record); err != nil {
		t.logger.Error().Err(err).Msg("Failed to publish telemetry")
	}
}

// SampleOnce collects every registered metric concurrently and builds a
// telemetry record. Metrics that could not be collected carry the sentinel.
func (t *TelemetryService) SampleOnce(ctx context.Context) models.TelemetryRecord {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	values := map[string]float64{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, collector := range t.registry.GetCollectors() {
		collector := collector
		wg.Add(1)
		submitted := t.workerPool.Submit(func() {
			defer wg.Done()
			v := collector.Collect(ctx)

			mu.Lock()
			values[collector.Name()] = v
			mu.Unlock()
		})
		if !submitted {
			wg.Done()
		}
	}
	wg.Wait()

	record := models.TelemetryRecord{
		Timestamp:     t.now().Unix(),
		CPUPercent:    valueOr(values, "cpu"),
		MemoryPercent: valueOr(values, "memory"),
		DeviceID:      t.deviceInfo.GetDeviceID(),
	}
	metrics.SetTelemetry(record.CPUPercent, record.MemoryPercent)

	t.logger.Debug().
		Float64("cpu_percent", record.CPUPercent).
		Float64("memory_percent", record.MemoryPercent).
		Msg("Telemetry sampled")
	return record
}

func valueOr(values map[string]float64, name string) float64 {
	if v, ok := values[name]; ok {
		return v
	}
	return constants.TelemetryUnavailable
}

// PublishTelemetry sends record to the telemetry topic. Failures are not
// retried; the next tick publishes a fresh record.
func (t *TelemetryService) PublishTelemetry(ctx context.Context, record models.TelemetryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize telemetry: %w", err)
	}

	err = publishWithTimeout(ctx, t.mqttClient, t.pubTopic, byte(t.qos), data, t.publishTimeout)
	metrics.ObservePublish(metrics.PublishKindTelemetry, err)
	if err != nil {
		return err
	}

	t.logger.Debug().Str("topic", t.pubTopic).Msg("Telemetry published successfully")
	return nil
}
