package executor

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/benmeehan/device-agent/internal/constants"
	"github.com/benmeehan/device-agent/internal/fallback"
	"github.com/benmeehan/device-agent/internal/models"
	"github.com/rs/zerolog"
)

// waitDelay bounds how long output pipes may stay open after the shell
// exits or is killed, e.g. when a backgrounded child inherited them.
const waitDelay = 2 * time.Second

// Options configures a ShellExecutor.
type Options struct {
	Shell            string        // Shell binary invoked as `<shell> -c <script>`.
	OutputSizeLimit  int           // Maximum captured stdout bytes.
	MaxExecutionTime time.Duration // Deadline per script; zero disables it.
	CaptureStderr    bool          // Report the script's stderr in the response.

	FallbackOnEmptyScript bool // Put fallback text in stdout when no script is given.
	FallbackOnEmptyOutput bool // Put fallback text in stdout when a script prints nothing.
}

// ShellExecutor runs command scripts through a shell, one at a time.
type ShellExecutor struct {
	opts     Options
	fallback fallback.Provider
	logger   zerolog.Logger
}

// NewShellExecutor creates a ShellExecutor. provider may be nil.
func NewShellExecutor(opts Options, provider fallback.Provider, logger zerolog.Logger) *ShellExecutor {
	if opts.Shell == "" {
		opts.Shell = constants.DefaultShell
	}
	if opts.OutputSizeLimit <= 0 {
		opts.OutputSizeLimit = constants.HighCapacityOutputSizeLimit
	}
	return &ShellExecutor{
		opts:     opts,
		fallback: provider,
		logger:   logger,
	}
}

// Execute runs req.Script and reports its output and exit status. Script
// failures, timeouts and start errors are reported in the result rather
// than returned.
func (e *ShellExecutor) Execute(ctx context.Context, req models.CommandRequest) models.ExecutionResult {
	if req.Script == "" {
		result := models.ExecutionResult{
			Stderr:   constants.StderrNoScript,
			ExitCode: constants.ExitCodeFailure,
		}
		if e.opts.FallbackOnEmptyScript {
			result.Stdout = e.fallbackContent(constants.DefaultFallbackReadLimit, constants.FallbackMissingScript)
		}
		return result
	}

	result := e.run(ctx, req.Script)
	if result.Executed && !result.TimedOut && len(result.Stdout) == 0 && e.opts.FallbackOnEmptyOutput {
		result.Stdout = e.fallbackContent(e.opts.OutputSizeLimit, constants.FallbackMissingOutput)
	}
	return result
}

func (e *ShellExecutor) run(ctx context.Context, script string) models.ExecutionResult {
	if e.opts.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.MaxExecutionTime)
		defer cancel()
	}

	stdout := newCappedBuffer(e.opts.OutputSizeLimit)
	var stderr *cappedBuffer

	cmd := exec.CommandContext(ctx, e.opts.Shell, "-c", script)
	cmd.Stdout = stdout
	if e.opts.CaptureStderr {
		stderr = newCappedBuffer(e.opts.OutputSizeLimit)
		cmd.Stderr = stderr
	}
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	e.logger.Debug().Str("shell", e.opts.Shell).Str("script", script).Msg("Executing script")
	start := time.Now()

	if err := cmd.Start(); err != nil {
		e.logger.Error().Err(err).Str("shell", e.opts.Shell).Msg("Failed to start shell")
		return models.ExecutionResult{
			Stderr:   constants.StderrStartFailed,
			ExitCode: constants.ExitCodeFailure,
		}
	}

	waitErr := cmd.Wait()
	killProcessGroup(cmd)

	result := models.ExecutionResult{
		Stdout:    stdout.Bytes(),
		Executed:  true,
		Truncated: stdout.Truncated(),
	}
	if stderr != nil {
		result.Stderr = string(stderr.Bytes())
	}

	switch {
	case waitErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = constants.ExitCodeTimedOut
		result.Stderr = constants.StderrTimedOut
		e.logger.Warn().Dur("limit", e.opts.MaxExecutionTime).Msg("Script execution timed out")
	case cmd.ProcessState != nil:
		result.ExitCode = exitStatus(cmd.ProcessState)
		if waitErr != nil && !isExitError(waitErr) {
			e.logger.Warn().Err(waitErr).Msg("Script output was not fully collected")
		}
	default:
		result.ExitCode = constants.ExitCodeFailure
		e.logger.Error().Err(waitErr).Msg("Failed to wait for script")
	}

	if result.Truncated {
		e.logger.Warn().Int("limit", e.opts.OutputSizeLimit).Msg("Script output truncated due to size limit")
	}
	e.logger.Debug().
		Int("exit_code", result.ExitCode).
		Int("stdout_bytes", len(result.Stdout)).
		Dur("duration", time.Since(start)).
		Msg("Script finished")
	return result
}

func (e *ShellExecutor) fallbackContent(limit int, missing string) []byte {
	if e.fallback != nil {
		if content, ok := e.fallback.Content(limit); ok {
			return content
		}
	}
	return []byte(missing)
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
