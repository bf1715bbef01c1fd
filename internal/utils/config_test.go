package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_HighCapacityDefaults(t *testing.T) {
	path := writeYAML(t, `
mqtt:
  broker: tcp://localhost:1883
services:
  command:
    enabled: true
  telemetry:
    enabled: true
`)

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	cmd := cfg.Services.Command
	assert.Equal(t, constants.ProfileHighCapacity, cmd.Profile)
	assert.Equal(t, constants.DefaultTopicNamespace, cmd.Namespace)
	assert.Equal(t, constants.HighCapacityOutputSizeLimit, cmd.OutputSizeLimit)
	assert.Equal(t, constants.HighCapacityResponseSizeLimit, cmd.ResponseSizeLimit)
	assert.Equal(t, constants.DefaultMessageSizeLimit, cmd.MessageSizeLimit)
	assert.Equal(t, constants.DefaultMaxExecutionTime, cmd.MaxExecutionTime)
	assert.True(t, *cmd.Fallback.OnEmptyScript)
	assert.True(t, *cmd.Fallback.OnEmptyOutput)

	assert.Equal(t, constants.DefaultTelemetryTopic, cfg.Services.Telemetry.Topic)
	assert.Equal(t, constants.DefaultTelemetryInterval, cfg.Services.Telemetry.Interval)
	assert.Equal(t, constants.FallbackDeviceID, cfg.Identity.FallbackID)
	assert.Equal(t, constants.DefaultGreengrassConfig, cfg.Identity.GreengrassConfig)
}

func TestLoadConfig_ConstrainedProfileWithOverrides(t *testing.T) {
	path := writeYAML(t, `
mqtt:
  broker: tcp://localhost:1883
services:
  command:
    profile: constrained
    output_size_limit: 512
    max_execution_time: 5s
    fallback:
      on_empty_output: true
  telemetry:
    interval: 10s
    timeout: 1m
`)

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	cmd := cfg.Services.Command
	assert.Equal(t, 512, cmd.OutputSizeLimit)
	assert.Equal(t, constants.ConstrainedResponseSizeLimit, cmd.ResponseSizeLimit)
	assert.Equal(t, 5*time.Second, cmd.MaxExecutionTime)
	assert.False(t, *cmd.Fallback.OnEmptyScript)
	assert.True(t, *cmd.Fallback.OnEmptyOutput)
	assert.Equal(t, 10*time.Second, cfg.Services.Telemetry.Timeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeYAML(t, `
mqtt:
  client_certificate: /etc/agent/device.pem
logging:
  format: xml
services:
  command:
    profile: huge
    qos: 3
    response_size_limit: 16
`)

	_, err := LoadConfig(path, file.NewFileService())
	require.Error(t, err)
	for _, want := range []string{
		"mqtt.broker is required",
		"must be set together",
		"requires mqtt.ca_certificate",
		"logging.format",
		"profile \"huge\"",
		"services.command.qos 3",
		"response_size_limit",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), file.NewFileService())
	assert.Error(t, err)
}

func TestMQTTClientID(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "device-agent-dev-1", cfg.MQTTClientID("dev-1"))
	assert.Equal(t, cfg.MQTTClientID("dev-1"), cfg.MQTTClientID("dev-1"))

	cfg.MQTT.ClientID = "gateway"
	assert.Equal(t, "gateway", cfg.MQTTClientID("dev-1"))

	cfg.MQTT.CleanSession = true
	first, second := cfg.MQTTClientID("dev-1"), cfg.MQTTClientID("dev-1")
	assert.True(t, strings.HasPrefix(first, "gateway-"))
	assert.NotEqual(t, first, second)
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"), file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/greengrass/packages/artifacts", cfg.Services.Command.Fallback.ArtifactsDir)
	assert.Equal(t, "com.example.DeviceAgent", cfg.Services.Command.Fallback.Component)
	assert.False(t, cfg.MQTT.CleanSession)
	assert.Equal(t, "device-agent-bench-unit-01", cfg.MQTTClientID("bench-unit-01"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logPath := filepath.Join(t.TempDir(), "agent.log")
	logger, err = NewLogger(LoggingConfig{Level: "warn", Format: "json", File: logPath, MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Warn().Msg("rotated output")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated output")

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
