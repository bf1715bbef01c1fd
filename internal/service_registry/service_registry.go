package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/device-agent/internal/executor"
	"github.com/benmeehan/device-agent/internal/fallback"
	"github.com/benmeehan/device-agent/internal/registry"
	"github.com/benmeehan/device-agent/internal/services"
	"github.com/benmeehan/device-agent/internal/utils"
	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/benmeehan/device-agent/pkg/identity"
	"github.com/benmeehan/device-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Names returns the registered service names in start order.
func (sr *ServiceRegistry) Names() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "command",
			enabled: config.Services.Command.Enabled,
			constructor: func() (registry.Service, error) {
				return sr.newCommandService(config, deviceInfo), nil
			},
		},
		{
			name:    "telemetry",
			enabled: config.Services.Telemetry.Enabled,
			constructor: func() (registry.Service, error) {
				tel := config.Services.Telemetry
				return services.NewTelemetryService(
					services.TelemetryServiceOptions{
						Topic:          tel.Topic,
						Interval:       tel.Interval,
						Timeout:        tel.Timeout,
						QOS:            tel.QOS,
						PublishTimeout: config.MQTT.PublishTimeout,
					},
					deviceInfo,
					sr.mqttClient,
					sr.Logger.With().Str("service", "telemetry").Logger(),
				), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	if len(registeredServices) == 0 {
		return errors.New("no services enabled")
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

func (sr *ServiceRegistry) newCommandService(config *utils.Config, deviceInfo identity.DeviceInfoInterface) *services.CommandService {
	cmd := config.Services.Command
	logger := sr.Logger.With().Str("service", "command").Logger()

	var provider fallback.Provider
	if cmd.Fallback.File != "" || cmd.Fallback.ArtifactsDir != "" {
		provider = fallback.NewFileProvider(
			cmd.Fallback.File,
			cmd.Fallback.ArtifactsDir,
			cmd.Fallback.Component,
			cmd.Fallback.FileName,
			sr.fileClient,
			logger,
		)
	}

	exec := executor.NewShellExecutor(executor.Options{
		Shell:                 cmd.Shell,
		OutputSizeLimit:       cmd.OutputSizeLimit,
		MaxExecutionTime:      cmd.MaxExecutionTime,
		CaptureStderr:         cmd.CaptureStderr,
		FallbackOnEmptyScript: boolValue(cmd.Fallback.OnEmptyScript),
		FallbackOnEmptyOutput: boolValue(cmd.Fallback.OnEmptyOutput),
	}, provider, logger)

	return services.NewCommandService(
		services.CommandServiceOptions{
			Namespace:         cmd.Namespace,
			QOS:               cmd.QOS,
			MessageSizeLimit:  cmd.MessageSizeLimit,
			ResponseSizeLimit: cmd.ResponseSizeLimit,
			PublishTimeout:    config.MQTT.PublishTimeout,
		},
		sr.mqttClient,
		deviceInfo,
		exec,
		logger,
	)
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
