package constants

import "time"

const (
	// DefaultTopicNamespace prefixes the per-device command and response topics.
	DefaultTopicNamespace = "greengrass/device-agent"
	// DefaultClientIDPrefix starts MQTT client ids derived from the device id.
	DefaultClientIDPrefix = "device-agent"

	// CommandTopicSuffix and ResponseTopicSuffix complete <namespace>/<deviceId>/<suffix>.
	CommandTopicSuffix  = "commands"
	ResponseTopicSuffix = "logs"

	DefaultMessageSizeLimit  = 2048
	DefaultMaxExecutionTime  = 30 * time.Second
	DefaultPublishTimeout    = 10 * time.Second
	DefaultShell             = "/bin/sh"
	MaxClientTokenLength     = 63
	MaxScriptLength          = 511
	DefaultFallbackFileName  = "examples.txt"
	DefaultFallbackReadLimit = 4096
)

// Buffer bounds of the two deployment profiles.
const (
	ProfileHighCapacity = "high_capacity"
	ProfileConstrained  = "constrained"

	HighCapacityOutputSizeLimit   = 90 * 1024
	HighCapacityResponseSizeLimit = 96 * 1024
	ConstrainedOutputSizeLimit    = 1024
	ConstrainedResponseSizeLimit  = 2048
)

// Messages placed in the stderr/stdout fields of a response.
const (
	StderrNoScript        = "No script provided"
	StderrStartFailed     = "Failed to execute script"
	StderrTimedOut        = "Script timed out"
	FallbackMissingScript = "See examples.txt file for command formats"
	FallbackMissingOutput = "Command returned no output. Examples file not found."
)

// Exit codes reported for outcomes that never produced a real exit status.
const (
	ExitCodeFailure  = 1
	ExitCodeTimedOut = 124
	ExitCodeSignaled = 128
)

// CommandState is the phase of a single command cycle.
type CommandState string

const (
	CommandStateIdle       CommandState = "idle"
	CommandStateExtracting CommandState = "extracting"
	CommandStateExecuting  CommandState = "executing"
	CommandStateEncoding   CommandState = "encoding"
	CommandStatePublishing CommandState = "publishing"
)
