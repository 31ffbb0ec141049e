//go:build unix

package runner

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the converter in its own process group and makes
// cancellation kill the whole group, including the browser it launched.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return cmd.Process.Kill()
		}
		return nil
	}
}
