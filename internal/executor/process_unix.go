//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// killProcessGroup puts the child in its own process group and makes
// context cancellation kill that whole group, so anything the worker
// spawned dies with it.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
