//go:build !windows

package exec

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcess puts the child in its own process group so the whole tree
// can be signalled at once.
func configureProcess(cmd *exec.Cmd, _ Invocation) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcessTree(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}
	// With Setpgid the group id equals the leader pid. A negative pid targets
	// the group: shell plus everything it spawned that did not detach.
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if killErr := cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return errors.Join(err, killErr)
	}
	return nil
}
