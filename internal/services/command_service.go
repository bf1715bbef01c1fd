package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/benmeehan/device-agent/internal/models"
	"github.com/benmeehan/device-agent/internal/observability/metrics"
	"github.com/benmeehan/device-agent/internal/state_managers"
	"github.com/benmeehan/device-agent/pkg/identity"
	"github.com/benmeehan/device-agent/pkg/mqtt"
	"github.com/benmeehan/device-agent/pkg/payload"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// CommandExecutor runs one extracted command.
type CommandExecutor interface {
	Execute(ctx context.Context, req models.CommandRequest) models.ExecutionResult
}

// CommandServiceOptions holds the command service configuration.
type CommandServiceOptions struct {
	Namespace         string
	QOS               int
	MessageSizeLimit  int
	ResponseSizeLimit int
	PublishTimeout    time.Duration
}

// CommandService receives command messages over MQTT, runs them one at a
// time and publishes a result record for each.
type CommandService struct {
	// Configuration Fields
	namespace         string
	qos               int
	responseSizeLimit int
	publishTimeout    time.Duration

	// Dependencies
	mqttClient mqtt.MQTTClient
	deviceInfo identity.DeviceInfoInterface
	executor   CommandExecutor
	logger     zerolog.Logger

	// Internal state management
	slot  *state_managers.CommandSlot
	state atomic.Value // constants.CommandState
	mu    sync.Mutex
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCommandService initializes a new CommandService with given parameters.
func NewCommandService(opts CommandServiceOptions, mqttClient mqtt.MQTTClient, deviceInfo identity.DeviceInfoInterface, executor CommandExecutor, logger zerolog.Logger) *CommandService {
	if opts.Namespace == "" {
		opts.Namespace = constants.DefaultTopicNamespace
	}
	if opts.MessageSizeLimit <= 0 {
		opts.MessageSizeLimit = constants.DefaultMessageSizeLimit
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = constants.DefaultPublishTimeout
	}

	cs := &CommandService{
		namespace:         opts.Namespace,
		qos:               opts.QOS,
		responseSizeLimit: opts.ResponseSizeLimit,
		publishTimeout:    opts.PublishTimeout,
		mqttClient:        mqttClient,
		deviceInfo:        deviceInfo,
		executor:          executor,
		logger:            logger,
		slot:              state_managers.NewCommandSlot(opts.MessageSizeLimit),
	}
	cs.state.Store(constants.CommandStateIdle)
	return cs
}

// CommandTopic is the topic commands are received on.
func (cs *CommandService) CommandTopic() string {
	return fmt.Sprintf("%s/%s/%s", cs.namespace, cs.deviceInfo.GetDeviceID(), constants.CommandTopicSuffix)
}

// ResponseTopic is the topic results are published on.
func (cs *CommandService) ResponseTopic() string {
	return fmt.Sprintf("%s/%s/%s", cs.namespace, cs.deviceInfo.GetDeviceID(), constants.ResponseTopicSuffix)
}

// State reports the phase of the command currently being processed.
func (cs *CommandService) State() constants.CommandState {
	return cs.state.Load().(constants.CommandState)
}

// Start subscribes to the command topic and starts the processing loop.
func (cs *CommandService) Start() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ctx != nil {
		cs.logger.Warn().Msg("CommandService is already running")
		return errors.New("command service is already running")
	}

	topic := cs.CommandTopic()
	cs.logger.Info().Str("topic", topic).Msg("Starting CommandService and subscribing to MQTT topic")
	token := cs.mqttClient.Subscribe(topic, byte(cs.qos), cs.HandleCommand)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.wg.Add(1)
	go cs.runProcessingLoop()

	cs.logger.Info().Str("topic", topic).Msg("Successfully subscribed to MQTT topic")
	return nil
}

// Stop ends the processing loop, waits for the current command and
// unsubscribes from the command topic.
func (cs *CommandService) Stop() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ctx == nil {
		cs.logger.Warn().Msg("CommandService is not running")
		return errors.New("command service is not running")
	}

	cs.cancel()
	cs.wg.Wait()
	cs.ctx, cs.cancel = nil, nil
	if cs.slot.Pending() {
		cs.logger.Warn().Msg("Stopped with a command still pending, it runs on the next start")
	}

	topic := cs.CommandTopic()
	token := cs.mqttClient.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from MQTT topic")
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}

	cs.logger.Info().Msg("CommandService stopped successfully")
	return nil
}

// HandleCommand is the MQTT message callback. It only hands the payload to
// the slot and never blocks on command processing.
func (cs *CommandService) HandleCommand(_ MQTT.Client, msg MQTT.Message) {
	result := cs.slot.Offer(msg.Payload())
	metrics.ObserveCommandReceived(result.String())

	switch result {
	case state_managers.OfferAccepted:
		cs.logger.Debug().Str("topic", msg.Topic()).Int("bytes", len(msg.Payload())).Msg("Command queued")
	case state_managers.OfferDroppedBusy:
		cs.logger.Warn().Str("topic", msg.Topic()).Msg("Command dropped, a command is already pending")
	case state_managers.OfferDroppedOversized:
		cs.logger.Warn().Str("topic", msg.Topic()).Int("bytes", len(msg.Payload())).Msg("Command dropped, message too large")
	}
}

// runProcessingLoop waits for the slot to fill and processes one command
// at a time until the service is stopped.
func (cs *CommandService) runProcessingLoop() {
	defer cs.wg.Done()

	for {
		// Checked on its own so a stop requested during a command wins over
		// a message that arrived meanwhile.
		if cs.ctx.Err() != nil {
			cs.logger.Info().Msg("Stopping command processing")
			return
		}

		select {
		case <-cs.ctx.Done():
			cs.logger.Info().Msg("Stopping command processing")
			return
		case <-cs.slot.Ready():
			raw, ok := cs.slot.TakeIfPresent()
			if !ok {
				continue
			}
			if err := cs.ProcessCommand(cs.ctx, raw); err != nil {
				cs.logger.Error().Err(err).Msg("Failed to publish command response")
			}
		}
	}
}

// ProcessCommand runs one full cycle for raw: extract, execute, encode and
// publish. Only the publish step can fail.
func (cs *CommandService) ProcessCommand(ctx context.Context, raw []byte) error {
	start := time.Now()
	defer cs.state.Store(constants.CommandStateIdle)

	cs.state.Store(constants.CommandStateExtracting)
	req := ExtractCommand(raw)
	cs.logger.Info().
		Str("client_token", req.ClientToken).
		Str("script", req.Script).
		Msg("Received command")

	cs.state.Store(constants.CommandStateExecuting)
	result := cs.executor.Execute(ctx, req)

	cs.state.Store(constants.CommandStateEncoding)
	response := payload.EncodeResponse(req.ClientToken, result.Stdout, result.Stderr, result.ExitCode, cs.responseSizeLimit)

	cs.state.Store(constants.CommandStatePublishing)
	err := cs.PublishResponse(ctx, response)

	metrics.ObserveCommandProcessed(commandOutcome(req, result), time.Since(start))
	if err == nil {
		cs.logger.Info().
			Str("client_token", req.ClientToken).
			Int("exit_code", result.ExitCode).
			Bool("truncated", result.Truncated).
			Int("bytes", len(response)).
			Msg("Sent command response")
	}
	return err
}

// ExtractCommand pulls the command fields out of a raw payload.
func ExtractCommand(raw []byte) models.CommandRequest {
	return models.CommandRequest{
		ClientToken: payload.ExtractField(raw, "clientToken", constants.MaxClientTokenLength),
		Script:      payload.ExtractField(raw, "script", constants.MaxScriptLength),
	}
}

// PublishResponse sends an encoded result to the response topic.
func (cs *CommandService) PublishResponse(ctx context.Context, response []byte) error {
	topic := cs.ResponseTopic()
	cs.logger.Debug().Str("topic", topic).Msg("Publishing command response to MQTT topic")

	err := publishWithTimeout(ctx, cs.mqttClient, topic, byte(cs.qos), response, cs.publishTimeout)
	metrics.ObservePublish(metrics.PublishKindResponse, err)
	if err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish command response")
		return err
	}
	return nil
}

func commandOutcome(req models.CommandRequest, result models.ExecutionResult) string {
	switch {
	case req.Script == "":
		return metrics.OutcomeNoScript
	case !result.Executed:
		return metrics.OutcomeStartFailed
	case result.TimedOut:
		return metrics.OutcomeTimedOut
	default:
		return metrics.OutcomeExecuted
	}
}

// publishWithTimeout publishes and waits for the broker acknowledgement,
// the context or the timeout, whichever comes first.
func publishWithTimeout(ctx context.Context, client mqtt.MQTTClient, topic string, qos byte, data []byte, timeout time.Duration) error {
	token := client.Publish(topic, qos, false, data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish to %s cancelled: %w", topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("publish to %s timed out after %s", topic, timeout)
	}
}
