package models

// CommandRequest holds the fields pulled out of a command payload.
// Either field may be empty; an empty Script means no script was provided.
type CommandRequest struct {
	ClientToken string `json:"clientToken"` // Correlation token echoed back in the response.
	Script      string `json:"script"`      // Shell script to run on the device.
}

// ExecutionResult is the outcome of running (or declining to run) a script.
type ExecutionResult struct {
	Stdout    []byte // Captured standard output, bounded by the configured output limit.
	Stderr    string // Diagnostic placed in the response stderr field.
	ExitCode  int    // True exit status of the script, 0-255.
	Executed  bool   // Whether a shell process actually ran.
	Truncated bool   // Whether stdout exceeded the output limit.
	TimedOut  bool   // Whether the execution deadline killed the script.
}
