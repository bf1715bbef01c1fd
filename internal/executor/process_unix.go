//go:build unix

package executor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/benmeehan/device-agent/internal/constants"
)

// setProcessGroup starts the shell in its own process group and makes
// context cancellation kill the whole group, not just the shell.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}

// killProcessGroup removes anything the script left running in its group.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// exitStatus converts a wait status into a shell-style exit code:
// the exit status for a normal exit, 128+signal for a signalled one.
func exitStatus(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return constants.ExitCodeSignaled + int(ws.Signal())
	}
	return state.ExitCode()
}
