//go:build !unix

package executor

import (
	"os"
	"os/exec"

	"github.com/benmeehan/device-agent/internal/constants"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {}

func exitStatus(state *os.ProcessState) int {
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return constants.ExitCodeFailure
}
