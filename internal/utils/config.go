package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/google/uuid"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker             string        `yaml:"broker"`               // MQTT broker address
		ClientID           string        `yaml:"client_id"`            // MQTT client ID, derived from the device id when empty
		CACertificate      string        `yaml:"ca_certificate"`       // Path to the CA certificate, empty for plain TCP
		ClientCertificate  string        `yaml:"client_certificate"`   // Path to the client certificate for mutual TLS
		ClientKey          string        `yaml:"client_key"`           // Path to the client private key
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"` // Skip broker certificate verification
		PublishTimeout     time.Duration `yaml:"publish_timeout"`      // Upper bound on waiting for a publish acknowledgement
		CleanSession       bool          `yaml:"clean_session"`        // Drop broker session state on connect
	} `yaml:"mqtt"`

	Identity struct {
		GreengrassConfig string `yaml:"greengrass_config"` // Greengrass config holding thingName
		DeviceID         string `yaml:"device_id"`         // Explicit device id, overrides thingName
		FallbackID       string `yaml:"fallback_id"`       // Used when no thingName is found
	} `yaml:"identity"`

	Logging LoggingConfig `yaml:"logging"`

	Services struct {
		Command   CommandConfig   `yaml:"command"`
		Telemetry TelemetryConfig `yaml:"telemetry"`
	} `yaml:"services"`

	Metrics struct {
		Enabled    bool   `yaml:"enabled"`     // Serve Prometheus metrics
		ListenAddr string `yaml:"listen_addr"` // Address of the /metrics listener
	} `yaml:"metrics"`
}

// LoggingConfig controls the agent logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // zerolog level name
	Format     string `yaml:"format"`      // "json" or "console"
	File       string `yaml:"file"`        // Optional log file, rotated by size
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotation threshold
	MaxBackups int    `yaml:"max_backups"` // Rotated files to keep
	MaxAgeDays int    `yaml:"max_age_days"`
}

// CommandConfig configures the command agent.
type CommandConfig struct {
	Enabled           bool          `yaml:"enabled"`             // Enable/disable command service
	Namespace         string        `yaml:"namespace"`           // Topic namespace, <namespace>/<deviceId>/commands
	QOS               int           `yaml:"qos"`                 // MQTT QoS level for command and response messages
	Profile           string        `yaml:"profile"`             // high_capacity or constrained
	MessageSizeLimit  int           `yaml:"message_size_limit"`  // Largest accepted command message in bytes
	OutputSizeLimit   int           `yaml:"output_size_limit"`   // Maximum captured stdout in bytes
	ResponseSizeLimit int           `yaml:"response_size_limit"` // Maximum encoded response in bytes
	MaxExecutionTime  time.Duration `yaml:"max_execution_time"`  // Deadline per script
	Shell             string        `yaml:"shell"`               // Shell used as `<shell> -c <script>`
	CaptureStderr     bool          `yaml:"capture_stderr"`      // Report the script's stderr

	Fallback struct {
		File          string `yaml:"file"`            // Explicit fallback file
		ArtifactsDir  string `yaml:"artifacts_dir"`   // Versioned artifact root
		Component     string `yaml:"component"`       // Component name under ArtifactsDir
		FileName      string `yaml:"file_name"`       // File inside the newest version directory
		OnEmptyScript *bool  `yaml:"on_empty_script"` // Unset follows the profile
		OnEmptyOutput *bool  `yaml:"on_empty_output"` // Unset follows the profile
	} `yaml:"fallback"`
}

// TelemetryConfig configures the telemetry sampler.
type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled"`  // Enable/disable telemetry service
	Topic    string        `yaml:"topic"`    // MQTT topic for telemetry records
	Interval time.Duration `yaml:"interval"` // Sampling period
	QOS      int           `yaml:"qos"`      // MQTT QoS level for telemetry messages
	Timeout  time.Duration `yaml:"timeout"`  // Upper bound on one sampling round
}

// LoadConfig loads the YAML configuration from the specified file,
// applies defaults and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// ApplyDefaults fills every unset field. Command buffer bounds and fallback
// policies come from the selected profile.
func (c *Config) ApplyDefaults() {
	if c.MQTT.PublishTimeout <= 0 {
		c.MQTT.PublishTimeout = constants.DefaultPublishTimeout
	}

	if c.Identity.GreengrassConfig == "" {
		c.Identity.GreengrassConfig = constants.DefaultGreengrassConfig
	}
	if c.Identity.FallbackID == "" {
		c.Identity.FallbackID = constants.FallbackDeviceID
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	cmd := &c.Services.Command
	if cmd.Namespace == "" {
		cmd.Namespace = constants.DefaultTopicNamespace
	}
	if cmd.Profile == "" {
		cmd.Profile = constants.ProfileHighCapacity
	}

	outputLimit, responseLimit, fallbackOn := constants.HighCapacityOutputSizeLimit, constants.HighCapacityResponseSizeLimit, true
	if cmd.Profile == constants.ProfileConstrained {
		outputLimit, responseLimit, fallbackOn = constants.ConstrainedOutputSizeLimit, constants.ConstrainedResponseSizeLimit, false
	}
	if cmd.OutputSizeLimit <= 0 {
		cmd.OutputSizeLimit = outputLimit
	}
	if cmd.ResponseSizeLimit <= 0 {
		cmd.ResponseSizeLimit = responseLimit
	}
	if cmd.Fallback.OnEmptyScript == nil {
		cmd.Fallback.OnEmptyScript = &fallbackOn
	}
	if cmd.Fallback.OnEmptyOutput == nil {
		cmd.Fallback.OnEmptyOutput = &fallbackOn
	}
	if cmd.MessageSizeLimit <= 0 {
		cmd.MessageSizeLimit = constants.DefaultMessageSizeLimit
	}
	if cmd.MaxExecutionTime <= 0 {
		cmd.MaxExecutionTime = constants.DefaultMaxExecutionTime
	}
	if cmd.Shell == "" {
		cmd.Shell = constants.DefaultShell
	}
	if cmd.Fallback.FileName == "" {
		cmd.Fallback.FileName = constants.DefaultFallbackFileName
	}

	tel := &c.Services.Telemetry
	if tel.Topic == "" {
		tel.Topic = constants.DefaultTelemetryTopic
	}
	if tel.Interval <= 0 {
		tel.Interval = constants.DefaultTelemetryInterval
	}
	if tel.Timeout <= 0 || tel.Timeout > tel.Interval {
		tel.Timeout = tel.Interval
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9464"
	}
}

// MQTTClientID returns the client id to connect with. A persistent session
// is only resumed under the same id, so without clean_session the id is
// stable: the configured one, or one derived from deviceID. A clean session
// gets a random suffix so parallel agents never take over each other.
func (c *Config) MQTTClientID(deviceID string) string {
	id := c.MQTT.ClientID
	if id == "" {
		id = constants.DefaultClientIDPrefix + "-" + deviceID
	}
	if c.MQTT.CleanSession {
		id += "-" + uuid.New().String()
	}
	return id
}

// Validate reports configuration values the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if (c.MQTT.ClientCertificate == "") != (c.MQTT.ClientKey == "") {
		errs = append(errs, errors.New("mqtt.client_certificate and mqtt.client_key must be set together"))
	}
	if c.MQTT.ClientCertificate != "" && c.MQTT.CACertificate == "" {
		errs = append(errs, errors.New("mqtt.client_certificate requires mqtt.ca_certificate"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or console", c.Logging.Format))
	}

	cmd := c.Services.Command
	switch cmd.Profile {
	case constants.ProfileHighCapacity, constants.ProfileConstrained:
	default:
		errs = append(errs, fmt.Errorf("services.command.profile %q is unknown", cmd.Profile))
	}
	if !validQOS(cmd.QOS) {
		errs = append(errs, fmt.Errorf("services.command.qos %d is not 0, 1 or 2", cmd.QOS))
	}
	if cmd.ResponseSizeLimit < minResponseSizeLimit {
		errs = append(errs, fmt.Errorf("services.command.response_size_limit must be at least %d", minResponseSizeLimit))
	}

	tel := c.Services.Telemetry
	if !validQOS(tel.QOS) {
		errs = append(errs, fmt.Errorf("services.telemetry.qos %d is not 0, 1 or 2", tel.QOS))
	}

	return errors.Join(errs...)
}

// minResponseSizeLimit fits the empty response skeleton with a short stderr.
const minResponseSizeLimit = 128

func validQOS(qos int) bool {
	return qos >= 0 && qos <= 2
}
