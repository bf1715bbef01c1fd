package models

// TelemetryRecord is the fixed-shape telemetry message published by the agent.
type TelemetryRecord struct {
	Timestamp     int64   `json:"timestamp"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DeviceID      string  `json:"device_id"`
}

// CPUSample is the cumulative tick state kept between two CPU readings.
type CPUSample struct {
	Idle  float64
	Total float64
}
