package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/device-agent/internal/observability/metrics"
	"github.com/benmeehan/device-agent/internal/service_registry"
	"github.com/benmeehan/device-agent/internal/utils"
	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/benmeehan/device-agent/pkg/identity"
	"github.com/benmeehan/device-agent/pkg/mqtt"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "device-agent",
		Usage: "run shell commands received over MQTT and publish host telemetry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "path to the agent configuration file",
				EnvVars: []string{"DEVICE_AGENT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "override logging.level from the configuration",
				EnvVars: []string{"DEVICE_AGENT_LOG_LEVEL"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(c.String("config"), fileClient)
	if err != nil {
		return err
	}
	if level := c.String("log-level"); level != "" {
		config.Logging.Level = level
	}

	log, err := utils.NewLogger(config.Logging)
	if err != nil {
		return err
	}

	deviceInfo := identity.NewDeviceInfo(
		config.Identity.GreengrassConfig,
		config.Identity.DeviceID,
		config.Identity.FallbackID,
		fileClient,
		log,
	)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Error().Err(err).Msg("Failed to load device information")
		return err
	}

	clientID := config.MQTTClientID(deviceInfo.GetDeviceID())
	log.Info().
		Str("client_id", clientID).
		Str("device_id", deviceInfo.GetDeviceID()).
		Bool("clean_session", config.MQTT.CleanSession).
		Msg("Using MQTT client ID")

	metrics.Register(nil)

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient, log)
	err = mqttClient.Initialize(mqtt.ConnectionOptions{
		Broker:             config.MQTT.Broker,
		ClientID:           clientID,
		CACertificate:      config.MQTT.CACertificate,
		ClientCertificate:  config.MQTT.ClientCertificate,
		ClientKey:          config.MQTT.ClientKey,
		InsecureSkipVerify: config.MQTT.InsecureSkipVerify,
		CleanSession:       config.MQTT.CleanSession,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize MQTT connection")
		return err
	}
	defer mqttClient.Disconnect(250)

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, log)
	if err := serviceRegistry.RegisterServices(config, deviceInfo); err != nil {
		log.Error().Err(err).Msg("Failed to register services")
		return err
	}
	if err := serviceRegistry.StartServices(); err != nil {
		log.Error().Err(err).Msg("Failed to start services")
		return err
	}
	log.Info().Msg("All services started successfully")

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		metricsServer = startMetricsServer(config.Metrics.ListenAddr, log)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Warn().Err(err).Msg("Some services did not stop cleanly")
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	return nil
}

func startMetricsServer(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
