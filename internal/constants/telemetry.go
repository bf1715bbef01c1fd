package constants

import "time"

const (
	DefaultTelemetryTopic    = "device/telemetry"
	DefaultTelemetryInterval = 30 * time.Second

	// TelemetryUnavailable is reported for a percentage that cannot be
	// computed: the first CPU sample, or counters that could not be read.
	TelemetryUnavailable = -1.0
)

const (
	DefaultGreengrassConfig = "/etc/greengrass/config.yaml"
	FallbackDeviceID        = "unknown-device"
)
