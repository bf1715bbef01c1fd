package identity

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/rs/zerolog"
)

// MaxDeviceIDLength bounds identifiers read from the Greengrass config.
const MaxDeviceIDLength = 63

// DeviceInfoInterface defines methods for resolving the device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	GetDeviceID() string
}

// DeviceInfo resolves the device id once at startup. Precedence is
// OverrideID, then thingName from GreengrassConfigFile, then FallbackID.
type DeviceInfo struct {
	GreengrassConfigFile string
	OverrideID           string
	FallbackID           string

	deviceID string
	fileOps  file.FileOperations
	logger   zerolog.Logger
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(greengrassConfigFile, overrideID, fallbackID string, fileOps file.FileOperations, logger zerolog.Logger) *DeviceInfo {
	return &DeviceInfo{
		GreengrassConfigFile: greengrassConfigFile,
		OverrideID:           overrideID,
		FallbackID:           fallbackID,
		fileOps:              fileOps,
		logger:               logger,
	}
}

// LoadDeviceInfo resolves the device id. A missing or unreadable Greengrass
// config is not an error; an id that cannot be used inside a topic is.
func (d *DeviceInfo) LoadDeviceInfo() error {
	if d.OverrideID != "" {
		if err := validateDeviceID(d.OverrideID); err != nil {
			return fmt.Errorf("invalid device id override: %w", err)
		}
		d.deviceID = d.OverrideID
		d.logger.Info().Str("device_id", d.deviceID).Msg("Using configured device id")
		return nil
	}

	thingName := d.readThingName()
	switch {
	case thingName == "":
		d.deviceID = d.FallbackID
	case len(thingName) > MaxDeviceIDLength:
		d.logger.Warn().Int("length", len(thingName)).Msg("thingName too long, using fallback device id")
		d.deviceID = d.FallbackID
	default:
		d.deviceID = thingName
	}

	if err := validateDeviceID(d.deviceID); err != nil {
		return fmt.Errorf("invalid device id %q: %w", d.deviceID, err)
	}

	d.logger.Info().Str("device_id", d.deviceID).Msg("Using thing name from config")
	return nil
}

// GetDeviceID returns the resolved device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.deviceID
}

func (d *DeviceInfo) readThingName() string {
	if d.GreengrassConfigFile == "" {
		return ""
	}

	var doc map[string]any
	if err := d.fileOps.ReadYamlFile(d.GreengrassConfigFile, &doc); err != nil {
		d.logger.Warn().Err(err).Str("file", d.GreengrassConfigFile).Msg("Greengrass config unavailable")
		return ""
	}

	return strings.TrimSpace(thingName(doc))
}

// thingName prefers system.thingName, where Greengrass writes it, and
// otherwise searches the whole document.
func thingName(doc map[string]any) string {
	if system, ok := doc["system"].(map[string]any); ok {
		if name, ok := system["thingName"].(string); ok {
			return name
		}
	}
	name, _ := findString(doc, "thingName")
	return name
}

// findString walks nested YAML maps depth first, visiting keys in sorted
// order, and returns the first string stored under key.
func findString(node any, key string) (string, bool) {
	switch v := node.(type) {
	case map[string]any:
		if s, ok := v[key].(string); ok {
			return s, true
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			if s, ok := findString(v[k], key); ok {
				return s, true
			}
		}
	case []any:
		for _, child := range v {
			if s, ok := findString(child, key); ok {
				return s, true
			}
		}
	}
	return "", false
}

func validateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("device id is empty")
	}
	if strings.ContainsAny(id, "+#/") {
		return fmt.Errorf("device id contains a topic separator or wildcard")
	}
	return nil
}
